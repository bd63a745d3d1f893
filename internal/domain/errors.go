package domain

import "errors"

var (
	// ErrUnauthenticated возвращается при анонимном запросе к платному материалу.
	ErrUnauthenticated = errors.New("требуется аутентификация")

	// ErrAccessDenied возвращается, когда тариф подписчика недостаточен.
	ErrAccessDenied = errors.New("тариф не даёт доступа к материалу")

	// ErrNotFound возвращается, когда материал, организация или членство не найдены.
	ErrNotFound = errors.New("not found")

	// ErrLastAdminViolation возвращается, когда операция оставила бы организацию без админов.
	ErrLastAdminViolation = errors.New("нельзя удалить последнего админа организации")

	// ErrDuplicateMembership возвращается при повторном добавлении участника.
	ErrDuplicateMembership = errors.New("участник уже состоит в организации")
)
