package orgs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
)

// Service управляет членствами в организациях и охраняет инвариант
// «организация с участниками всегда сохраняет хотя бы одного админа».
type Service struct {
	members   domain.MembershipStore
	analytics domain.AnalyticsEventRepo
	log       zerolog.Logger
}

// NewService создаёт сервис организаций.
func NewService(members domain.MembershipStore, analytics domain.AnalyticsEventRepo, logger zerolog.Logger) *Service {
	return &Service{members: members, analytics: analytics, log: logger}
}

// CanDemoteOrRemove — консультативная проверка: вернёт ErrLastAdminViolation,
// если участник — единственный админ. Сама мутация всё равно проверяется
// в одной транзакции с ней (guarded-методы стора), эта проверка только
// даёт ранний ответ без захвата блокировок.
func (s *Service) CanDemoteOrRemove(ctx context.Context, organizationID, principalID string) error {
	role, err := s.members.FindRole(ctx, organizationID, principalID)
	if err != nil {
		return fmt.Errorf("получение роли: %w", err)
	}
	if role != domain.OrgRoleAdmin {
		return nil
	}
	admins, err := s.members.CountAdmins(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("подсчёт админов: %w", err)
	}
	if admins <= 1 {
		return domain.ErrLastAdminViolation
	}
	return nil
}

// AddMember добавляет участника организации.
func (s *Service) AddMember(ctx context.Context, membership domain.OrganizationMembership) error {
	if _, ok := domain.ParseOrgRole(string(membership.Role)); !ok {
		return fmt.Errorf("некорректная роль %q", membership.Role)
	}
	if err := s.members.AddMember(ctx, membership); err != nil {
		return err
	}
	return nil
}

// RemoveMember удаляет участника. Проверка последнего админа выполняется
// в той же транзакции, что и удаление.
func (s *Service) RemoveMember(ctx context.Context, organizationID, principalID string) error {
	if err := s.members.RemoveMemberGuarded(ctx, organizationID, principalID); err != nil {
		return err
	}
	if s.analytics != nil {
		pid := principalID
		if err := s.analytics.RecordAnalyticsEvent(ctx, domain.AnalyticsEvent{
			Event:       domain.AnalyticsEventMemberRemoved,
			PrincipalID: &pid,
			Metadata:    map[string]any{"organization_id": organizationID},
		}); err != nil {
			s.log.Warn().Err(err).Str("organization_id", organizationID).Msg("orgs: событие аналитики не записано")
		}
	}
	return nil
}

// ChangeRole меняет роль участника под той же транзакционной защитой.
func (s *Service) ChangeRole(ctx context.Context, organizationID, principalID string, role domain.OrgRole) error {
	if _, ok := domain.ParseOrgRole(string(role)); !ok {
		return fmt.Errorf("некорректная роль %q", role)
	}
	return s.members.ChangeRoleGuarded(ctx, organizationID, principalID, role)
}

// ListMembers возвращает участников организации постранично.
func (s *Service) ListMembers(ctx context.Context, organizationID string, limit, offset int) ([]domain.OrganizationMembership, error) {
	return s.members.ListMembers(ctx, organizationID, limit, offset)
}
