package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "hunter2hunter2", false},
		{"valid mixed", "secret123", false},
		{"too short", "ab1", true},
		{"digits only", "12345678", true},
		{"letters only", "abcdefgh", true},
		{"unicode letters and digit", "pässwörter1", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tc.password)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateUserValidation(t *testing.T) {
	u, err := CreateUser("Jane Doe", "jane@example.com", "secret123")
	require.NoError(t, err)

	assert.Equal(t, ROLE_USER, u.Role)
	assert.Equal(t, STATUS_ACTIVE, u.Status)
	assert.True(t, u.CheckPassword("secret123"))
	assert.False(t, u.CheckPassword("wrong-password"))

	_, err = CreateUser("Jane Doe", "not-an-email", "secret123")
	assert.Error(t, err)
}

func TestResetTokenLifecycle(t *testing.T) {
	u := &User{}
	assert.False(t, u.IsResetTokenValid("anything"))

	require.NoError(t, u.GenerateResetToken())
	require.NotEmpty(t, u.ResetToken)
	require.NotNil(t, u.ResetSentAt)

	assert.True(t, u.IsResetTokenValid(u.ResetToken))
	assert.False(t, u.IsResetTokenValid("some-other-token"))

	expired := time.Now().Add(-2 * time.Hour)
	u.ResetSentAt = &expired
	assert.False(t, u.IsResetTokenValid(u.ResetToken))
}

func TestSubscriptionEffectiveTier(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	cases := []struct {
		name string
		sub  Subscription
		want string
	}{
		{"free active", Subscription{Tier: TierFree, Status: SubscriptionStatusActive}, TierFree},
		{"pro active", Subscription{Tier: TierPro, Status: SubscriptionStatusActive, CurrentPeriodEnd: &future}, TierPro},
		{"pro canceled", Subscription{Tier: TierPro, Status: SubscriptionStatusCanceled, CurrentPeriodEnd: &future}, TierFree},
		{"basic lapsed period", Subscription{Tier: TierBasic, Status: SubscriptionStatusActive, CurrentPeriodEnd: &past}, TierFree},
		{"basic no period end", Subscription{Tier: TierBasic, Status: SubscriptionStatusActive}, TierBasic},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.sub.EffectiveTier())
		})
	}
}
