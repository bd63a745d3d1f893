package access

import (
	"errors"
	"testing"

	"newshub-backend/internal/domain"
)

func tierPtr(t domain.SubscriberTier) *domain.SubscriberTier {
	return &t
}

func TestCheckAccessTable(t *testing.T) {
	cases := []struct {
		name       string
		subscriber *domain.SubscriberTier
		content    domain.ContentTier
		want       error
	}{
		{"аноним к free", nil, domain.ContentTierFree, nil},
		{"аноним к premium", nil, domain.ContentTierPremium, domain.ErrUnauthenticated},
		{"аноним к organization", nil, domain.ContentTierOrganization, domain.ErrUnauthenticated},
		{"free к free", tierPtr(domain.SubscriberTierFree), domain.ContentTierFree, nil},
		{"free к premium", tierPtr(domain.SubscriberTierFree), domain.ContentTierPremium, domain.ErrAccessDenied},
		{"free к organization", tierPtr(domain.SubscriberTierFree), domain.ContentTierOrganization, domain.ErrAccessDenied},
		{"individual к free", tierPtr(domain.SubscriberTierIndividual), domain.ContentTierFree, nil},
		{"individual к premium", tierPtr(domain.SubscriberTierIndividual), domain.ContentTierPremium, nil},
		{"individual к organization", tierPtr(domain.SubscriberTierIndividual), domain.ContentTierOrganization, domain.ErrAccessDenied},
		{"organization к free", tierPtr(domain.SubscriberTierOrganization), domain.ContentTierFree, nil},
		{"organization к premium", tierPtr(domain.SubscriberTierOrganization), domain.ContentTierPremium, nil},
		{"organization к organization", tierPtr(domain.SubscriberTierOrganization), domain.ContentTierOrganization, nil},
	}

	policy := NewPolicy()
	for _, tc := range cases {
		err := policy.CheckAccess(tc.subscriber, tc.content)
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: не ожидали ошибку, получили %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: ожидали %v, получили %v", tc.name, tc.want, err)
		}
	}
}

func TestAllowedContentTiers(t *testing.T) {
	policy := NewPolicy()

	anon := policy.AllowedContentTiers(nil)
	if len(anon) != 1 || anon[0] != domain.ContentTierFree {
		t.Fatalf("аноним: ожидали только free, получили %v", anon)
	}

	individual := policy.AllowedContentTiers(tierPtr(domain.SubscriberTierIndividual))
	if len(individual) != 2 || individual[0] != domain.ContentTierFree || individual[1] != domain.ContentTierPremium {
		t.Fatalf("individual: ожидали free+premium, получили %v", individual)
	}

	org := policy.AllowedContentTiers(tierPtr(domain.SubscriberTierOrganization))
	if len(org) != 3 {
		t.Fatalf("organization: ожидали все уровни, получили %v", org)
	}
}
