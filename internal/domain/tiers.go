package domain

import "strings"

// ContentTier описывает уровень доступа к материалу.
type ContentTier string

const (
	ContentTierFree         ContentTier = "free"
	ContentTierPremium      ContentTier = "premium"
	ContentTierOrganization ContentTier = "organization"
)

// SubscriberTier описывает тариф подписчика.
type SubscriberTier string

const (
	SubscriberTierFree         SubscriberTier = "free"
	SubscriberTierIndividual   SubscriberTier = "individual"
	SubscriberTierOrganization SubscriberTier = "organization"
)

// accessTable — авторитетная таблица доступа: уровень материала -> тарифы с доступом.
// Анонимный доступ (nil-тариф) разрешён только к free и в таблице не участвует.
// Таблица не является строгим порядком: individual не видит organization-материалы.
var accessTable = map[ContentTier]map[SubscriberTier]struct{}{
	ContentTierFree: {
		SubscriberTierFree:         {},
		SubscriberTierIndividual:   {},
		SubscriberTierOrganization: {},
	},
	ContentTierPremium: {
		SubscriberTierIndividual:   {},
		SubscriberTierOrganization: {},
	},
	ContentTierOrganization: {
		SubscriberTierOrganization: {},
	},
}

// TierGrantsAccess сообщает, открывает ли тариф доступ к уровню материала.
func TierGrantsAccess(subscriber SubscriberTier, content ContentTier) bool {
	granted, ok := accessTable[content]
	if !ok {
		return false
	}
	_, ok = granted[subscriber]
	return ok
}

// ParseContentTier приводит строку к уровню материала.
func ParseContentTier(raw string) (ContentTier, bool) {
	switch ContentTier(strings.ToLower(strings.TrimSpace(raw))) {
	case ContentTierFree:
		return ContentTierFree, true
	case ContentTierPremium:
		return ContentTierPremium, true
	case ContentTierOrganization:
		return ContentTierOrganization, true
	}
	return "", false
}

// ParseSubscriberTier приводит строку к тарифу подписчика.
func ParseSubscriberTier(raw string) (SubscriberTier, bool) {
	switch SubscriberTier(strings.ToLower(strings.TrimSpace(raw))) {
	case SubscriberTierFree:
		return SubscriberTierFree, true
	case SubscriberTierIndividual:
		return SubscriberTierIndividual, true
	case SubscriberTierOrganization:
		return SubscriberTierOrganization, true
	}
	return "", false
}

// OrgRole описывает роль участника организации.
type OrgRole string

const (
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

// ParseOrgRole приводит строку к роли участника.
func ParseOrgRole(raw string) (OrgRole, bool) {
	switch OrgRole(strings.ToLower(strings.TrimSpace(raw))) {
	case OrgRoleAdmin:
		return OrgRoleAdmin, true
	case OrgRoleMember:
		return OrgRoleMember, true
	}
	return "", false
}
