package natsclient

import (
	"fmt"
	"hash/fnv"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// clientIdentity derives a stable per-process identity for the results
// subject. The machine ID keeps it stable across restarts; the pid keeps
// concurrent processes on one machine apart.
func clientIdentity() string {
	mid, err := machineid.ProtectedID("stdbridge")
	if err != nil {
		log.Warn().Err(err).Msg("Machine ID unavailable, using time-based client identity")
		mid = fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}

	h := fnv.New64a()
	h.Write([]byte(mid))
	h.Write([]byte(fmt.Sprintf(":%d", os.Getpid())))
	return fmt.Sprintf("%016x", h.Sum64())
}
