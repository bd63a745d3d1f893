package domain

import "time"

// MaxRelatedItems ограничивает количество связанных материалов.
const MaxRelatedItems = 3

// ContentItem описывает материал в каталоге.
// Каталог наполняется внешним пайплайном; ядро меняет только
// PopularityScore (агрегатор) и RelatedIDs (линковщик при инжесте).
type ContentItem struct {
	ID              string
	Title           string
	Source          string
	Author          string
	AccessTier      ContentTier
	Categories      []string
	Regions         []string
	Topics          []string
	PublishedAt     time.Time
	PopularityScore int64
	RelatedIDs      []string
	CreatedAt       time.Time
}

// InterestProfile хранит интересы подписчика. Все грани необязательны.
type InterestProfile struct {
	Categories      []string
	Regions         []string
	Topics          []string
	Sources         []string
	FollowedAuthors []string
}

// IsEmpty сообщает, что ни одна грань профиля не заполнена.
func (p InterestProfile) IsEmpty() bool {
	return len(p.Categories) == 0 && len(p.Regions) == 0 && len(p.Topics) == 0 &&
		len(p.Sources) == 0 && len(p.FollowedAuthors) == 0
}

// Principal описывает субъекта запроса. Tier == nil означает анонима.
type Principal struct {
	ID        string
	Tier      *SubscriberTier
	Interests InterestProfile
}

// EngagementEvent — агрегированное состояние взаимодействий пары
// (подписчик, материал). Физически одна строка на пару, не журнал.
type EngagementEvent struct {
	PrincipalID      string
	ContentID        string
	ReadAt           *time.Time
	TimeSpentSeconds int
	Completed        bool
	Reactions        []string
	Saved            bool
	UpdatedAt        time.Time
}

// EngagementKind описывает тип взаимодействия.
type EngagementKind string

const (
	EngagementKindView  EngagementKind = "view"
	EngagementKindSave  EngagementKind = "save"
	EngagementKindReact EngagementKind = "react"
)

// EngagementUpdate — дельта для атомарного upsert строки взаимодействий.
// Nil-поля не трогают текущее значение; AddReactions объединяются как множество.
type EngagementUpdate struct {
	ReadAt           *time.Time
	TimeSpentSeconds int
	Completed        *bool
	AddReactions     []string
	Saved            *bool
}

// ContentAggregate — счётчики вовлечённости материала за окно.
type ContentAggregate struct {
	ContentID     string
	ViewCount     int64
	SaveCount     int64
	ReactionCount int64
}

// PopularityScore считает взвешенный рейтинг по счётчикам окна.
func (a ContentAggregate) PopularityScore() int64 {
	return a.ViewCount + 2*a.SaveCount + a.ReactionCount
}

// TrendingTopic — тема, ранжированная по суммарной популярности свежих материалов.
type TrendingTopic struct {
	Topic           string
	Count           int64
	TotalPopularity int64
}

// OrganizationMembership связывает подписчика с организацией.
// Инвариант: организация с участниками всегда сохраняет хотя бы одного админа.
type OrganizationMembership struct {
	OrganizationID string
	PrincipalID    string
	Role           OrgRole
	AddedAt        time.Time
}
