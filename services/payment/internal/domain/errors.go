// Package domain содержит бизнес-сущности Payment Service.
package domain

import "errors"

// Доменные ошибки Payment Service.
var (
	// ErrUnknownProvider — провайдер не зарегистрирован в реестре.
	ErrUnknownProvider = errors.New("неизвестный платёжный провайдер")

	// ErrAuthenticity — подпись callback не прошла проверку подлинности.
	ErrAuthenticity = errors.New("callback не прошёл проверку подлинности")

	// ErrAmountMismatch — сумма в callback не совпадает с суммой платежа.
	ErrAmountMismatch = errors.New("сумма в callback не совпадает с суммой платежа")

	// ErrInvalidTransition — недопустимый переход состояния оплаты.
	ErrInvalidTransition = errors.New("недопустимый переход состояния оплаты")

	// ErrStorageConflict — конкурентное обновление записи (CAS не прошёл).
	ErrStorageConflict = errors.New("конфликт версий при обновлении состояния")

	// ErrInvalidAmount — некорректная сумма платежа.
	ErrInvalidAmount = errors.New("сумма платежа должна быть больше нуля")

	// ErrBookingNotFound — состояние оплаты бронирования не найдено.
	ErrBookingNotFound = errors.New("оплата бронирования не найдена")

	// ErrRequestNotFound — запись о платеже с таким transaction_id не найдена.
	ErrRequestNotFound = errors.New("платёж с таким transaction_id не найден")

	// ErrDuplicateRequest — платёж с таким transaction_id уже существует.
	ErrDuplicateRequest = errors.New("платёж с таким transaction_id уже существует")
)
