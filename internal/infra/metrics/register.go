package metrics

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once    sync.Once
	pending []prometheus.Collector
)

// register queues collectors from each file's init.
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// RegisterWith adds every queued collector to reg. Collectors already known
// to reg are skipped.
func RegisterWith(reg prometheus.Registerer) error {
	for _, c := range pending {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// MustRegister registers the queued collectors with the default registry
// once and panics on a conflict.
func MustRegister() {
	once.Do(func() {
		if err := RegisterWith(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}

// norm lower-cases a label value; empty values become "unknown".
func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
