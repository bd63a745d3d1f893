package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ContentStore       = (*Postgres)(nil)
	_ domain.EngagementStore    = (*Postgres)(nil)
	_ domain.MembershipStore    = (*Postgres)(nil)
	_ domain.AnalyticsEventRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

var contentColumns = []string{
	"id", "title", "source", "author", "access_tier",
	"categories", "regions", "topics",
	"published_at", "popularity_score", "related_ids", "created_at",
}

func scanContentItem(row pgx.Row) (domain.ContentItem, error) {
	var (
		item domain.ContentItem
		tier string
	)
	err := row.Scan(
		&item.ID, &item.Title, &item.Source, &item.Author, &tier,
		&item.Categories, &item.Regions, &item.Topics,
		&item.PublishedAt, &item.PopularityScore, &item.RelatedIDs, &item.CreatedAt,
	)
	if err != nil {
		return domain.ContentItem{}, err
	}
	item.AccessTier = domain.ContentTier(tier)
	return item, nil
}

// FindByFilter реализует domain.ContentStore.
func (p *Postgres) FindByFilter(ctx context.Context, filter domain.ContentFilter) ([]domain.ContentItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	builder := sq.Select(contentColumns...).
		From("content_items").
		PlaceholderFormat(sq.Dollar)

	if len(filter.TierIn) > 0 {
		tiers := make([]string, 0, len(filter.TierIn))
		for _, tier := range filter.TierIn {
			tiers = append(tiers, string(tier))
		}
		builder = builder.Where(sq.Eq{"access_tier": tiers})
	}
	if filter.HasInterestFacets() {
		// Грани интересов объединяются через OR: достаточно совпадения
		// по любой из них.
		facets := sq.Or{}
		if len(filter.CategoryIn) > 0 {
			facets = append(facets, sq.Expr("categories && ?", filter.CategoryIn))
		}
		if len(filter.RegionIn) > 0 {
			facets = append(facets, sq.Expr("regions && ?", filter.RegionIn))
		}
		if len(filter.TopicIn) > 0 {
			facets = append(facets, sq.Expr("topics && ?", filter.TopicIn))
		}
		if len(filter.SourceIn) > 0 {
			facets = append(facets, sq.Eq{"source": filter.SourceIn})
		}
		if len(filter.AuthorIn) > 0 {
			facets = append(facets, sq.Eq{"author": filter.AuthorIn})
		}
		builder = builder.Where(facets)
	}
	if filter.PublishedAfter != nil {
		builder = builder.Where(sq.GtOrEq{"published_at": *filter.PublishedAfter})
	}

	switch filter.Sort {
	case domain.ContentSortPopularityDesc:
		builder = builder.OrderBy("popularity_score DESC", "id ASC")
	default:
		builder = builder.OrderBy("published_at DESC", "id ASC")
	}
	if filter.Skip > 0 {
		builder = builder.Offset(uint64(filter.Skip))
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build content query: %w", err)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "content_find", "content_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetByID реализует domain.ContentStore.
func (p *Postgres) GetByID(ctx context.Context, id string) (domain.ContentItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, title, source, author, access_tier,
       categories, regions, topics,
       published_at, popularity_score, related_ids, created_at
FROM content_items
WHERE id = $1
`, id)
	item, err := scanContentItem(row)
	metrics.ObserveNetworkRequest("postgres", "content_get", "content_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ContentItem{}, domain.ErrNotFound
	}
	return item, err
}

// Insert реализует domain.ContentStore.
func (p *Postgres) Insert(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO content_items (
    id, title, source, author, access_tier,
    categories, regions, topics,
    published_at, popularity_score, related_ids, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`,
		item.ID, item.Title, item.Source, item.Author, string(item.AccessTier),
		item.Categories, item.Regions, item.Topics,
		item.PublishedAt, item.PopularityScore, item.RelatedIDs, item.CreatedAt,
	)
	metrics.ObserveNetworkRequest("postgres", "content_insert", "content_items", start, err)
	if err != nil {
		return domain.ContentItem{}, err
	}
	return item, nil
}

// UpdateScore реализует domain.ContentStore.
func (p *Postgres) UpdateScore(ctx context.Context, id string, score int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE content_items SET popularity_score = $2 WHERE id = $1
`, id, score)
	metrics.ObserveNetworkRequest("postgres", "content_update_score", "content_items", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateRelated реализует domain.ContentStore.
func (p *Postgres) UpdateRelated(ctx context.Context, id string, relatedIDs []string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if relatedIDs == nil {
		relatedIDs = []string{}
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE content_items SET related_ids = $2 WHERE id = $1
`, id, relatedIDs)
	metrics.ObserveNetworkRequest("postgres", "content_update_related", "content_items", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Upsert реализует domain.EngagementStore. Слияние дельты выполняется в одном
// выражении ON CONFLICT, поэтому конкурентные записи по одной паре не теряются.
// Merge монотонный: повтор той же дельты не меняет строку (time_spent берётся
// через GREATEST, а не суммируется).
func (p *Postgres) Upsert(ctx context.Context, principalID, contentID string, update domain.EngagementUpdate) (domain.EngagementEvent, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	completed := update.Completed != nil && *update.Completed
	saved := update.Saved != nil && *update.Saved
	reactions := update.AddReactions
	if reactions == nil {
		reactions = []string{}
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO engagement_events (
    principal_id, content_id, read_at, time_spent_seconds,
    completed, reactions, saved, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (principal_id, content_id) DO UPDATE SET
    read_at            = COALESCE(engagement_events.read_at, EXCLUDED.read_at),
    time_spent_seconds = GREATEST(engagement_events.time_spent_seconds, EXCLUDED.time_spent_seconds),
    completed          = engagement_events.completed OR EXCLUDED.completed,
    reactions          = ARRAY(
        SELECT DISTINCT r
        FROM unnest(COALESCE(engagement_events.reactions, '{}') || COALESCE(EXCLUDED.reactions, '{}')) AS r
        ORDER BY r
    ),
    saved      = CASE WHEN $8 THEN EXCLUDED.saved ELSE engagement_events.saved END,
    updated_at = now()
RETURNING principal_id, content_id, read_at, time_spent_seconds, completed, reactions, saved, updated_at
`,
		principalID, contentID, update.ReadAt, update.TimeSpentSeconds,
		completed, reactions, saved, update.Saved != nil,
	)

	var event domain.EngagementEvent
	err := row.Scan(
		&event.PrincipalID, &event.ContentID, &event.ReadAt, &event.TimeSpentSeconds,
		&event.Completed, &event.Reactions, &event.Saved, &event.UpdatedAt,
	)
	metrics.ObserveNetworkRequest("postgres", "engagement_upsert", "engagement_events", start, err)
	if err != nil {
		return domain.EngagementEvent{}, err
	}
	return event, nil
}

// FindByPrincipal реализует domain.EngagementStore.
func (p *Postgres) FindByPrincipal(ctx context.Context, principalID string) ([]domain.EngagementEvent, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT principal_id, content_id, read_at, time_spent_seconds, completed, reactions, saved, updated_at
FROM engagement_events
WHERE principal_id = $1
ORDER BY updated_at DESC
`, principalID)
	metrics.ObserveNetworkRequest("postgres", "engagement_by_principal", "engagement_events", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.EngagementEvent
	for rows.Next() {
		var event domain.EngagementEvent
		if err := rows.Scan(
			&event.PrincipalID, &event.ContentID, &event.ReadAt, &event.TimeSpentSeconds,
			&event.Completed, &event.Reactions, &event.Saved, &event.UpdatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// AggregateByContent реализует domain.EngagementStore. Окно отсчитывается
// по read_at: строки без просмотра в счётчики не попадают.
func (p *Postgres) AggregateByContent(ctx context.Context, windowStart time.Time) ([]domain.ContentAggregate, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT content_id,
       COUNT(*)                                  AS views,
       COUNT(*) FILTER (WHERE saved)             AS saves,
       COALESCE(SUM(cardinality(reactions)), 0)  AS reactions
FROM engagement_events
WHERE read_at IS NOT NULL AND read_at >= $1
GROUP BY content_id
`, windowStart)
	metrics.ObserveNetworkRequest("postgres", "engagement_aggregate", "engagement_events", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggregates []domain.ContentAggregate
	for rows.Next() {
		var agg domain.ContentAggregate
		if err := rows.Scan(&agg.ContentID, &agg.ViewCount, &agg.SaveCount, &agg.ReactionCount); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates, rows.Err()
}

// CountAdmins реализует domain.MembershipStore.
func (p *Postgres) CountAdmins(ctx context.Context, organizationID string) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM organization_memberships
WHERE organization_id = $1 AND role = $2
`, organizationID, string(domain.OrgRoleAdmin)).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "membership_count_admins", "organization_memberships", start, err)
	return count, err
}

// FindRole реализует domain.MembershipStore.
func (p *Postgres) FindRole(ctx context.Context, organizationID, principalID string) (domain.OrgRole, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var role string
	err := p.pool.QueryRow(ctx, `
SELECT role FROM organization_memberships
WHERE organization_id = $1 AND principal_id = $2
`, organizationID, principalID).Scan(&role)
	metrics.ObserveNetworkRequest("postgres", "membership_find_role", "organization_memberships", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.OrgRole(role), nil
}

// AddMember реализует domain.MembershipStore.
func (p *Postgres) AddMember(ctx context.Context, membership domain.OrganizationMembership) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if membership.AddedAt.IsZero() {
		membership.AddedAt = time.Now().UTC()
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO organization_memberships (organization_id, principal_id, role, added_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (organization_id, principal_id) DO NOTHING
`, membership.OrganizationID, membership.PrincipalID, string(membership.Role), membership.AddedAt)
	metrics.ObserveNetworkRequest("postgres", "membership_add", "organization_memberships", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateMembership
	}
	return nil
}

// ListMembers реализует domain.MembershipStore.
func (p *Postgres) ListMembers(ctx context.Context, organizationID string, limit, offset int) ([]domain.OrganizationMembership, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT organization_id, principal_id, role, added_at
FROM organization_memberships
WHERE organization_id = $1
ORDER BY added_at ASC, principal_id ASC
LIMIT $2 OFFSET $3
`, organizationID, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "membership_list", "organization_memberships", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.OrganizationMembership
	for rows.Next() {
		var (
			member domain.OrganizationMembership
			role   string
		)
		if err := rows.Scan(&member.OrganizationID, &member.PrincipalID, &role, &member.AddedAt); err != nil {
			return nil, err
		}
		member.Role = domain.OrgRole(role)
		members = append(members, member)
	}
	return members, rows.Err()
}

// lockMembershipTx блокирует строку участника и, если он админ, все
// админские строки организации. Возвращает текущую роль участника.
func lockMembershipTx(ctx context.Context, tx pgx.Tx, organizationID, principalID string) (domain.OrgRole, int, error) {
	var role string
	err := tx.QueryRow(ctx, `
SELECT role FROM organization_memberships
WHERE organization_id = $1 AND principal_id = $2
FOR UPDATE
`, organizationID, principalID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, domain.ErrNotFound
	}
	if err != nil {
		return "", 0, err
	}

	if domain.OrgRole(role) != domain.OrgRoleAdmin {
		return domain.OrgRole(role), 0, nil
	}

	rows, err := tx.Query(ctx, `
SELECT principal_id FROM organization_memberships
WHERE organization_id = $1 AND role = $2
FOR UPDATE
`, organizationID, string(domain.OrgRoleAdmin))
	if err != nil {
		return "", 0, err
	}
	defer rows.Close()

	admins := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", 0, err
		}
		admins++
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}
	return domain.OrgRole(role), admins, nil
}

// RemoveMemberGuarded реализует domain.MembershipStore. Проверка последнего
// админа и удаление выполняются в одной транзакции под FOR UPDATE.
func (p *Postgres) RemoveMemberGuarded(ctx context.Context, organizationID, principalID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		role, admins, err := lockMembershipTx(ctx, tx, organizationID, principalID)
		if err != nil {
			return err
		}
		if role == domain.OrgRoleAdmin && admins <= 1 {
			return domain.ErrLastAdminViolation
		}
		_, err = tx.Exec(ctx, `
DELETE FROM organization_memberships
WHERE organization_id = $1 AND principal_id = $2
`, organizationID, principalID)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "membership_remove", "organization_memberships", start, err)
	return err
}

// ChangeRoleGuarded реализует domain.MembershipStore. Понижение последнего
// админа блокируется той же транзакционной проверкой, что и удаление.
func (p *Postgres) ChangeRoleGuarded(ctx context.Context, organizationID, principalID string, role domain.OrgRole) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		current, admins, err := lockMembershipTx(ctx, tx, organizationID, principalID)
		if err != nil {
			return err
		}
		if current == domain.OrgRoleAdmin && role != domain.OrgRoleAdmin && admins <= 1 {
			return domain.ErrLastAdminViolation
		}
		_, err = tx.Exec(ctx, `
UPDATE organization_memberships SET role = $3
WHERE organization_id = $1 AND principal_id = $2
`, organizationID, principalID, string(role))
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "membership_change_role", "organization_memberships", start, err)
	return err
}

// RecordAnalyticsEvent реализует domain.AnalyticsEventRepo.
func (p *Postgres) RecordAnalyticsEvent(ctx context.Context, event domain.AnalyticsEvent) error {
	if event.Event == "" {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var payload []byte
	if event.Metadata != nil {
		if data, err := json.Marshal(event.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO analytics_events (event, principal_id, content_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, event.Event, event.PrincipalID, event.ContentID, payload, event.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "analytics_event_insert", "analytics_events", start, err)
	return err
}
