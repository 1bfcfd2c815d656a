//go:build integration

package credential_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"custoda/internal/credential"
	"custoda/pkg/platform/sentinel"
	"custoda/pkg/testutil/containers"
)

type RedisCredentialSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *credential.RedisStore
}

func TestRedisCredentialSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCredentialSuite))
}

func (s *RedisCredentialSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = credential.NewRedisStore(s.redis.Client)
}

func (s *RedisCredentialSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCredentialSuite) TestIssueListRevoke() {
	ctx := context.Background()

	ref, err := s.store.Provision(ctx, "owner-1")
	s.Require().NoError(err)

	id, err := s.store.Issue(ctx, ref, []byte(`{"recordId":"r1"}`))
	s.Require().NoError(err)

	creds, err := s.store.List(ctx, ref)
	s.Require().NoError(err)
	s.Require().Len(creds, 1)
	s.Equal(id, creds[0].ID)
	s.Equal([]byte(`{"recordId":"r1"}`), creds[0].Payload)

	s.Require().NoError(s.store.Revoke(ctx, id))

	creds, err = s.store.List(ctx, ref)
	s.Require().NoError(err)
	s.Empty(creds)
}

func (s *RedisCredentialSuite) TestUnknownRefs() {
	ctx := context.Background()

	_, err := s.store.Issue(ctx, "cred-ghost", []byte(`{}`))
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.List(ctx, "cred-ghost")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Revoke(ctx, "no-such-credential"), sentinel.ErrNotFound)
}
