//go:build integration_test || all_tests

package messages_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/2beens/contactform/internal/db"
	"github.com/2beens/contactform/internal/messages"

	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/suite"
)

const psqlInitSQL = `
CREATE TABLE public.messages
(
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name       VARCHAR NOT NULL,
    email      VARCHAR NOT NULL,
    message    TEXT    NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX ix_messages_created_at ON public.messages USING btree (created_at);
`

type PsqlRepoTestSuite struct {
	suite.Suite

	DB         *sql.DB
	dockerPool *dockertest.Pool
	resource   *dockertest.Resource
	dsn        string
}

func TestPsqlRepoTestSuite(t *testing.T) {
	suite.Run(t, new(PsqlRepoTestSuite))
}

func (s *PsqlRepoTestSuite) SetupSuite() {
	var err error
	s.dockerPool, err = dockertest.NewPool("")
	s.Require().NoError(err, "create dockertest pool")
	s.Require().NoError(s.dockerPool.Client.Ping(), "ping docker")

	s.resource, err = s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=contactform",
			"POSTGRES_HOST_AUTH_METHOD=trust",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	s.Require().NoError(err, "run postgres")

	s.dsn = fmt.Sprintf(
		"postgres://postgres@localhost:%s/contactform?sslmode=disable",
		s.resource.GetPort("5432/tcp"),
	)

	s.Require().NoError(s.dockerPool.Retry(func() error {
		var err error
		s.DB, err = sql.Open("postgres", s.dsn)
		if err != nil {
			return err
		}
		return s.DB.Ping()
	}), "connect to postgres")
}

func (s *PsqlRepoTestSuite) TearDownSuite() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			s.T().Logf("close db: %s", err)
		}
	}
	if s.resource != nil {
		if err := s.resource.Close(); err != nil {
			s.T().Logf("postgres teardown: %s", err)
		}
	}
}

func (s *PsqlRepoTestSuite) SetupTest() {
	_, err := s.DB.Exec(`DROP TABLE IF EXISTS public.messages;`)
	s.Require().NoError(err)
	_, err = s.DB.Exec(psqlInitSQL)
	s.Require().NoError(err)
}

func (s *PsqlRepoTestSuite) newRepo() *messages.PsqlRepo {
	ctx := context.Background()
	pool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		ConnString: s.dsn,
		MaxConns:   4,
	})
	s.Require().NoError(err)
	s.T().Cleanup(pool.Close)
	return messages.NewPsqlRepo(pool, "public.messages", 5*time.Second)
}

func (s *PsqlRepoTestSuite) TestContract() {
	repo := s.newRepo()
	runRepoContract(s.T(), repo)

	var count int
	s.Require().NoError(s.DB.QueryRow(`SELECT count(*) FROM public.messages;`).Scan(&count))
	s.Equal(4, count)
}

func (s *PsqlRepoTestSuite) TestMissingTable() {
	repo := s.newRepo()
	_, err := s.DB.Exec(`DROP TABLE public.messages;`)
	s.Require().NoError(err)

	_, err = repo.ListAll(context.Background())
	s.Require().Error(err)
	s.Equal(messages.KindOperational, messages.KindOf(err))

	s.Error(repo.Probe(context.Background()))
}

func (s *PsqlRepoTestSuite) TestUnknownDatabase() {
	ctx := context.Background()
	pool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		ConnString: fmt.Sprintf(
			"postgres://postgres@localhost:%s/does_not_exist?sslmode=disable",
			s.resource.GetPort("5432/tcp"),
		),
	})
	s.Require().NoError(err)
	defer pool.Close()

	repo := messages.NewPsqlRepo(pool, "messages", 5*time.Second)
	_, err = repo.Insert(ctx, "Ana", "ana@example.com", "hi")
	s.Require().Error(err)
	s.Equal(messages.KindConfig, messages.KindOf(err))
}

func (s *PsqlRepoTestSuite) TestNilPool() {
	repo := messages.NewPsqlRepo(nil, "messages", 0)
	_, err := repo.Insert(context.Background(), "Ana", "ana@example.com", "hi")
	s.Require().Error(err)
	s.Equal(messages.KindConfig, messages.KindOf(err))
}
