package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every series exported by the gateway.
const namespace = "comfy_gateway"

var (
	once       sync.Once
	collectors []prometheus.Collector
)

func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// Register adds every collector declared in this package to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, dup := err.(prometheus.AlreadyRegisteredError); dup {
				continue
			}
			return err
		}
	}
	return nil
}

// MustRegister registers the package collectors with the default registry.
// Safe to call more than once.
func MustRegister() {
	once.Do(func() {
		if err := Register(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
