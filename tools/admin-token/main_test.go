package main

import (
	"testing"
	"time"

	"github.com/proofline/booking/libs/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueOwnerToken(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")

	token, err := issue("ops", " Proofline ", auth.RoleOwner, time.Hour)
	require.NoError(t, err)
	claims, err := auth.ParseAndVerifyHS256(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "proofline", claims.Org)
	assert.True(t, claims.CanManage("proofline"))
	assert.False(t, claims.CanManage("elsewhere"))
}

func TestIssueRequiresSecret(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "")
	_, err := issue("ops", "proofline", auth.RoleOwner, time.Hour)
	assert.ErrorContains(t, err, "ADMIN_JWT_SECRET")
}

func TestIssueRejectsBadInput(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")

	_, err := issue("ops", "", auth.RoleOwner, time.Hour)
	assert.Error(t, err)
	_, err = issue("ops", "proofline", "viewer", time.Hour)
	assert.Error(t, err)
	_, err = issue("ops", "proofline", auth.RoleOwner, 0)
	assert.Error(t, err)

	token, err := issue("root", "", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)
	claims, err := auth.ParseAndVerifyHS256(token, "s3cret")
	require.NoError(t, err)
	assert.True(t, claims.CanManage("anything"))
}
