/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package claim_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
	claimMocks "github.com/learningeconomy/vcapi-exchange-go/pkg/internal/gomocks/exchange/claim"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/internal/mocklogger"
)

const (
	badgeVC = `{
		"@context": ["https://www.w3.org/2018/credentials/v1"],
		"id": "urn:uuid:badge-1",
		"type": ["VerifiableCredential", "OpenBadgeCredential"],
		"credentialSubject": {"id": "did:example:holder", "achievement": {"achievementType": "Course"}}
	}`
	idVC = `{
		"@context": ["https://www.w3.org/2018/credentials/v1"],
		"id": "urn:uuid:id-1",
		"type": ["VerifiableCredential", "BoostID"],
		"credentialSubject": [{"id": "did:example:holder"}]
	}`
)

func TestNew(t *testing.T) {
	_, err := claim.New(nil)
	require.ErrorIs(t, err, claim.ErrNoStore)
}

func TestExecutor_Claim(t *testing.T) {
	t.Run("claims every credential and logs one event each", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := claimMocks.NewMockStore(ctrl)
		store.EXPECT().StoreAndAddCredentialToWallet(gomock.Any(), json.RawMessage(badgeVC),
			&claim.Metadata{Category: claim.CategoryAchievement, AchievementType: "Course"}).Return(nil)
		store.EXPECT().StoreAndAddCredentialToWallet(gomock.Any(), json.RawMessage(idVC),
			&claim.Metadata{Category: claim.CategoryID}).Return(nil)

		analytics := claimMocks.NewMockAnalytics(ctrl)
		analytics.EXPECT().LogEvent(claim.EventClaim, map[string]interface{}{
			claim.ParamCategory: claim.CategoryAchievement, claim.ParamAchievementType: "Course",
			claim.ParamAlreadyClaimed: false,
		})
		analytics.EXPECT().LogEvent(claim.EventClaim, map[string]interface{}{
			claim.ParamCategory: claim.CategoryID, claim.ParamAchievementType: "",
			claim.ParamAlreadyClaimed: false,
		})

		executor, err := claim.New(store, claim.WithAnalytics(analytics))
		require.NoError(t, err)

		result, err := executor.Claim(context.Background(),
			[]json.RawMessage{json.RawMessage(badgeVC), json.RawMessage(idVC)})
		require.NoError(t, err)
		require.Equal(t, 2, result.Claimed)
		require.Equal(t, 0, result.AlreadyClaimed)
		require.Equal(t, 2, result.Total())
		require.Len(t, result.Outcomes, 2)
	})

	t.Run("already claimed is a success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := claimMocks.NewMockStore(ctrl)
		gomock.InOrder(
			store.EXPECT().StoreAndAddCredentialToWallet(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
			store.EXPECT().StoreAndAddCredentialToWallet(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(errors.New("content with same type and id already exists in this wallet")),
		)

		analytics := claimMocks.NewMockAnalytics(ctrl)
		analytics.EXPECT().LogEvent(claim.EventClaim, gomock.Any()).Times(2)

		executor, err := claim.New(store, claim.WithAnalytics(analytics))
		require.NoError(t, err)

		first, err := executor.Claim(context.Background(), []json.RawMessage{json.RawMessage(badgeVC)})
		require.NoError(t, err)
		require.Equal(t, 1, first.Claimed)

		second, err := executor.Claim(context.Background(), []json.RawMessage{json.RawMessage(badgeVC)})
		require.NoError(t, err)
		require.Equal(t, 0, second.Claimed)
		require.Equal(t, 1, second.AlreadyClaimed)
		require.Equal(t, claim.StatusAlreadyClaimed, second.Outcomes[0].Status)
		require.Equal(t, 1, second.Total())
	})

	t.Run("storage failure fails the batch but every credential is attempted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := claimMocks.NewMockStore(ctrl)
		store.EXPECT().StoreAndAddCredentialToWallet(gomock.Any(), json.RawMessage(badgeVC), gomock.Any()).
			Return(errors.New("Internal Server Error"))
		store.EXPECT().StoreAndAddCredentialToWallet(gomock.Any(), json.RawMessage(idVC), gomock.Any()).
			Return(nil)

		analytics := claimMocks.NewMockAnalytics(ctrl)
		analytics.EXPECT().LogEvent(claim.EventClaim, gomock.Any()).Times(1)

		l := &mocklogger.MockLogger{}

		executor, err := claim.New(store, claim.WithAnalytics(analytics), claim.WithLogger(l))
		require.NoError(t, err)

		result, err := executor.Claim(context.Background(),
			[]json.RawMessage{json.RawMessage(badgeVC), json.RawMessage(idVC)})
		require.Error(t, err)

		var claimErr *claim.Error

		require.True(t, errors.As(err, &claimErr))
		require.Contains(t, claimErr.Reason, "Internal Server Error")
		require.Equal(t, "Server Error", claimErr.Friendly.Title)
		require.Equal(t, 1, result.Claimed)
		require.Equal(t, claim.StatusFailed, result.Outcomes[0].Status)
		require.Equal(t, claim.StatusClaimed, result.Outcomes[1].Status)
		require.Contains(t, l.AllLogContents(), "claim batch failed")
	})

	t.Run("empty batch", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		executor, err := claim.New(claimMocks.NewMockStore(ctrl))
		require.NoError(t, err)

		result, err := executor.Claim(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, 0, result.Total())
	})
}

func TestTypeCategorizer(t *testing.T) {
	c := &claim.TypeCategorizer{}

	require.Equal(t, claim.CategoryAchievement, c.Category(json.RawMessage(badgeVC)))
	require.Equal(t, "Course", c.AchievementType(json.RawMessage(badgeVC)))
	require.Equal(t, claim.CategoryID, c.Category(json.RawMessage(idVC)))
	require.Equal(t, "", c.AchievementType(json.RawMessage(idVC)))
	require.Equal(t, "Diploma", c.Category(json.RawMessage(`{"type":["VerifiableCredential","DiplomaCredential"]}`)))
	require.Equal(t, claim.CategoryUnknown, c.Category(json.RawMessage(`{"type":"VerifiableCredential"}`)))
	require.Equal(t, claim.CategoryUnknown, c.Category(json.RawMessage(`"eyJhbGciOi.jwt.vc"`)))
	require.Equal(t, "", c.AchievementType(json.RawMessage(`{"credentialSubject":"did:example:1"}`)))

	custom := &claim.TypeCategorizer{Categories: map[string]string{"DiplomaCredential": "Learning History"}}
	require.Equal(t, "Learning History",
		custom.Category(json.RawMessage(`{"type":["VerifiableCredential","DiplomaCredential"]}`)))
}
