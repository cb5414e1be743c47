package crdt

// Decision определяет, что делать с входящей (удаленной) версией сущности.
type Decision int

const (
	// ApplyIncoming входящая версия новее локальной - перезаписываем локальное состояние
	ApplyIncoming Decision = iota
	// SkipIncoming входящая версия уже известна или устарела
	SkipIncoming
	// KeepLocal версии конкурентны: локальная версия сохраняется и должна быть
	// заново отправлена на сервер под объединенными часами
	KeepLocal
)

// String возвращает имя решения для логов.
func (d Decision) String() string {
	switch d {
	case ApplyIncoming:
		return "apply"
	case SkipIncoming:
		return "skip"
	case KeepLocal:
		return "keep_local"
	default:
		return "unknown"
	}
}

// Decide сравнивает часы локальной и входящей версии сущности.
// Входящая версия никогда не перезаписывает доминирующую или конкурентную локальную.
// Если локальной версии нет (localExists == false), входящая применяется всегда.
func Decide(local, incoming VectorClock, localExists bool) Decision {
	if !localExists {
		return ApplyIncoming
	}

	switch Compare(incoming, local) {
	case DominatesA:
		return ApplyIncoming
	case Concurrent:
		return KeepLocal
	default:
		// Equal: версия уже применена; DominatesB: локальная новее
		return SkipIncoming
	}
}
