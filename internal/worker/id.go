package worker

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

// NewID генерирует короткий идентификатор worker'а вида worker-<id>.
func NewID() string {
	gen, err := shortid.New(1, shortid.DefaultABC, uint64(time.Now().UnixNano()))
	if err == nil {
		if id, err := gen.Generate(); err == nil {
			return "worker-" + id
		}
	}

	// shortid не смог — берём хвост uuid
	return fmt.Sprintf("worker-%s", uuid.NewString()[:8])
}
