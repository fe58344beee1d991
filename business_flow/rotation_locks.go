package businessflow

import (
	"sync"

	"github.com/amirphl/booster/models"
)

var (
	rotationMutexes sync.Map // models.BoostModule -> *sync.Mutex
)

func lockRotation(module models.BoostModule) func() {
	m, _ := rotationMutexes.LoadOrStore(module, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
