//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"research_pipeline/internal/domain"
)

type RedisIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	addr      string
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(s.ctx, "6379")
	s.Require().NoError(err)
	s.addr = fmt.Sprintf("%s:%s", host, port.Port())
}

func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRedisIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) TestSetAndGet() {
	front, err := NewRedisFront(s.ctx, RedisConfig{Addr: s.addr, TTL: time.Minute})
	s.Require().NoError(err)
	defer front.Close()

	h := domain.ContentHash("Hello world")
	err = front.Set(s.ctx, &domain.FormattedResult{
		ContentHash:     h,
		FormattedOutput: "# Hello\n\nworld",
		ModelUsed:       "gpt-4o",
		TokenCount:      20,
	})
	s.Require().NoError(err)

	res, ok, err := front.Get(s.ctx, h)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("# Hello\n\nworld", res.FormattedOutput)
	s.Equal(20, res.TokenCount)
}

func (s *RedisIntegrationSuite) TestGet_Miss() {
	front, err := NewRedisFront(s.ctx, RedisConfig{Addr: s.addr, TTL: time.Minute})
	s.Require().NoError(err)
	defer front.Close()

	_, ok, err := front.Get(s.ctx, domain.ContentHash("absent"))
	s.NoError(err)
	s.False(ok)
}

func (s *RedisIntegrationSuite) TestEntriesExpire() {
	front, err := NewRedisFront(s.ctx, RedisConfig{Addr: s.addr, TTL: time.Second})
	s.Require().NoError(err)
	defer front.Close()

	h := domain.ContentHash("short lived")
	s.Require().NoError(front.Set(s.ctx, &domain.FormattedResult{ContentHash: h, FormattedOutput: "x"}))

	s.Eventually(func() bool {
		_, ok, err := front.Get(s.ctx, h)
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}
