package crdt

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// VectorClock представляет векторные часы: счетчик на каждого клиента (устройство).
// Отсутствующий ключ эквивалентен нулевому счетчику.
type VectorClock map[string]int64

// Ordering результат сравнения двух векторных часов.
type Ordering int

const (
	// Equal все счетчики совпадают
	Equal Ordering = iota
	// DominatesA первый аргумент доминирует над вторым
	DominatesA
	// DominatesB второй аргумент доминирует над первым
	DominatesB
	// Concurrent ни один из векторов не доминирует (конфликт)
	Concurrent
)

// String возвращает имя результата сравнения для логов.
func (o Ordering) String() string {
	switch o {
	case Equal:
		return "EQUAL"
	case DominatesA:
		return "DOMINATES_A"
	case DominatesB:
		return "DOMINATES_B"
	case Concurrent:
		return "CONCURRENT"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(o)) + ")"
	}
}

// NewClientID генерирует уникальный идентификатор клиента (устройства) для векторных часов.
func NewClientID() string {
	return uuid.New().String()
}

// Compare сравнивает два вектора. Чистая функция, аргументы не изменяются.
func Compare(a, b VectorClock) Ordering {
	aGreater, bGreater := false, false

	for k, av := range a {
		bv := b[k]
		if av > bv {
			aGreater = true
		} else if av < bv {
			bGreater = true
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; ok {
			continue
		}
		// в a ключа нет, значит счетчик a равен 0
		if bv > 0 {
			bGreater = true
		} else if bv < 0 {
			aGreater = true
		}
	}

	switch {
	case aGreater && bGreater:
		return Concurrent
	case aGreater:
		return DominatesA
	case bGreater:
		return DominatesB
	default:
		return Equal
	}
}

// Dominates возвращает true, если vc строго доминирует над other.
func (vc VectorClock) Dominates(other VectorClock) bool {
	return Compare(vc, other) == DominatesA
}

// Clone создает копию вектора. Для nil возвращает пустой (не nil) вектор.
func (vc VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(vc))
	maps.Copy(out, vc)
	return out
}

// Merge возвращает покомпонентный максимум vc и other.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	out := vc.Clone()
	for k, v := range other {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// Increment возвращает копию вектора с увеличенным на 1 счетчиком клиента.
// Используется при создании новой локальной версии сущности.
func (vc VectorClock) Increment(clientID string) VectorClock {
	out := vc.Clone()
	out[clientID]++
	return out
}

// Get возвращает счетчик клиента (0 если ключа нет).
func (vc VectorClock) Get(clientID string) int64 {
	return vc[clientID]
}

// String форматирует вектор детерминированно (ключи отсортированы).
func (vc VectorClock) String() string {
	keys := slices.Sorted(maps.Keys(vc))
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(vc[k], 10))
	}
	b.WriteByte('}')
	return b.String()
}
