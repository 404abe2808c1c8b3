package cmd

import (
	"expvar"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/CraigKelly/dsem/sampler"
)

var publishOnce sync.Once
var published = new(expvar.Map).Init()

// monitor publishes sampling progress over HTTP via expvar
type monitor struct {
	addr    string
	log     io.Writer
	info    *expvar.Map
	stopped chan struct{}
	server  *http.Server
	start   time.Time

	Chains             *expvar.Int
	WarmupIterations   *expvar.Int
	SamplingIterations *expvar.Int
	Iterations         *expvar.Int
	Divergences        *expvar.Int
	ChainsDone         *expvar.Int
	RunTime            *expvar.Float
}

func newMonitor(addr string, log io.Writer) *monitor {
	m := &monitor{
		addr: addr,
		log:  log,
		info: new(expvar.Map).Init(),

		Chains:             new(expvar.Int),
		WarmupIterations:   new(expvar.Int),
		SamplingIterations: new(expvar.Int),
		Iterations:         new(expvar.Int),
		Divergences:        new(expvar.Int),
		ChainsDone:         new(expvar.Int),
		RunTime:            new(expvar.Float),
	}

	m.info.Set("Chain-Count", m.Chains)
	m.info.Set("Warmup-Iterations", m.WarmupIterations)
	m.info.Set("Sampling-Iterations", m.SamplingIterations)
	m.info.Set("Iterations", m.Iterations)
	m.info.Set("Divergences", m.Divergences)
	m.info.Set("Chains-Done", m.ChainsDone)
	m.info.Set("Run-Time", m.RunTime)
	return m
}

// Progress is a sampler.ProgressFunc; expvar counters are atomic so every
// chain may call it
func (m *monitor) Progress(chain int, phase sampler.Phase, iter int, st sampler.Stats) {
	m.Iterations.Add(1)
	if phase == sampler.Sampling && st.Divergent {
		m.Divergences.Add(1)
	}
	if phase == sampler.Sampling && int64(iter+1) == m.SamplingIterations.Value() {
		m.ChainsDone.Add(1)
	}
	m.RunTime.Set(time.Since(m.start).Seconds())
}

// Start begins serving /debug/vars
func (m *monitor) Start() error {
	if m.server != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	m.start = time.Now()
	m.stopped = make(chan struct{})

	// The expvar handler lives on the default mux, so the progress map is
	// published there once per process and re-pointed at the live monitor
	publishOnce.Do(func() {
		expvar.Publish("dsem-progress", published)
		http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/debug/vars", http.StatusTemporaryRedirect)
		})
	})
	m.info.Do(func(kv expvar.KeyValue) {
		published.Set(kv.Key, kv.Value)
	})

	m.server = &http.Server{Addr: m.addr}

	started := make(chan struct{})
	go func() {
		defer close(m.stopped)
		fmt.Fprintf(m.log, "HTTP now available at %v (see debug/vars/)\n", m.server.Addr)
		close(started)
		m.server.ListenAndServe()
	}()

	<-started
	return nil
}

// Stop shuts the server down, giving up after a couple of seconds
func (m *monitor) Stop() {
	if m.server == nil {
		return
	}

	m.RunTime.Set(time.Since(m.start).Seconds())
	m.server.Close()

	select {
	case <-m.stopped:
		fmt.Fprintf(m.log, "HTTP Info Stopped\n")
	case <-time.After(2 * time.Second):
		fmt.Fprintf(m.log, "HTTP would NOT stop: just continuing on\n")
	}
}
