// Package distributor раздаёт получателей кампании по instances.
//
// Раздача детерминированна относительно переданного источника
// случайности: порядок получателей и порядок instances фиксированы,
// случайны только шаги расписания.
package distributor

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Assignment — назначение одного получателя: какой instance отправляет
// и с какой задержкой от момента раздачи.
type Assignment struct {
	Recipient string
	Instance  uuid.UUID
	Delay     time.Duration
}

// Distribute строит план рассылки: получатели идут round-robin по
// instances, а задержки образуют одно общее нарастающее расписание.
//
// Перед каждым получателем расписание сдвигается на случайный шаг из
// [minDelay, maxDelay] (в целых секундах), поэтому кампания в целом
// отправляет не чаще одного сообщения за шаг, сколько бы instances
// за ней ни было закреплено.
func Distribute(recipients []string, instances []uuid.UUID, minDelay, maxDelay time.Duration, rng *rand.Rand) []Assignment {
	if len(recipients) == 0 || len(instances) == 0 {
		return nil
	}

	assignments := make([]Assignment, 0, len(recipients))
	var clock time.Duration
	for i, recipient := range recipients {
		clock += Between(rng, minDelay, maxDelay)
		assignments = append(assignments, Assignment{
			Recipient: recipient,
			Instance:  instances[i%len(instances)],
			Delay:     clock,
		})
	}
	return assignments
}

// Between возвращает случайную длительность из [min, max] с шагом в
// одну секунду. При min >= max возвращает min.
func Between(rng *rand.Rand, min, max time.Duration) time.Duration {
	minSec := int64(min / time.Second)
	maxSec := int64(max / time.Second)
	if maxSec <= minSec {
		return time.Duration(minSec) * time.Second
	}
	return time.Duration(minSec+rng.Int63n(maxSec-minSec+1)) * time.Second
}
