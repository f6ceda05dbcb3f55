package locker

import "sync"

// KeyedMutex даёт взаимное исключение по ключу. Используется для
// сериализации money-moving операций по одному контракту: два конкурентных
// fund или release не должны оба пройти guard-проверки. Операции по разным
// контрактам независимы и не блокируют друг друга.
type KeyedMutex struct {
	locks sync.Map
}

func New() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock захватывает мьютекс ключа и возвращает функцию разблокировки.
//
//	unlock := locks.Lock(contractID.String())
//	defer unlock()
func (km *KeyedMutex) Lock(key string) (unlock func()) {
	v, _ := km.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
