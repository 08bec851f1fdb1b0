package project

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/costwise/costwise/internal/test_utils"
)

var db *sql.DB

func TestMain(m *testing.M) {
	container, open := test_utils.TestWithDB()
	db = open()
	code := m.Run()
	db.Close()
	if err := testcontainers.TerminateContainer(container); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, Repository, string) {
	t.Helper()
	testCtx := context.Background()
	repository := NewProjectRepo(db)
	// A fresh owner per test keeps tests independent on the shared database.
	userId := uuid.New().String()
	return testCtx, repository, userId
}

func newStoredProject(t *testing.T, testCtx context.Context, repo Repository, userId, name string) Project {
	t.Helper()
	project, err := repo.CreateProject(testCtx, userId, Project{
		Uid:       uuid.New().String(),
		Name:      name,
		Code:      "PRJ-1",
		Client:    "Meridian Developments",
		Currency:  "AUD",
		Status:    StatusActive,
		CreatedAt: time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return project
}

func TestRepositoryImpl_CreateProject(t *testing.T) {
	// given
	testCtx, repo, userId := setupTestRepository(t)

	// when
	created := newStoredProject(t, testCtx, repo, userId, "Riverside Apartments")

	// then
	stored, err := repo.GetProject(testCtx, userId, created.Uid)
	assert.NoError(t, err)
	assert.Equal(t, "Riverside Apartments", stored.Name)
	assert.Equal(t, "AUD", stored.Currency)
	assert.Equal(t, StatusActive, stored.Status)
	assert.Equal(t, created.CreatedAt, stored.CreatedAt)
}

func TestRepositoryImpl_GetProject_NotFound(t *testing.T) {
	// given
	testCtx, repo, userId := setupTestRepository(t)

	// when
	_, err := repo.GetProject(testCtx, userId, uuid.New().String())

	// then
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestRepositoryImpl_GetProject_OtherUsersProjectIsInvisible(t *testing.T) {
	// given
	testCtx, repo, userId := setupTestRepository(t)
	created := newStoredProject(t, testCtx, repo, userId, "Riverside Apartments")

	// when
	_, err := repo.GetProject(testCtx, uuid.New().String(), created.Uid)

	// then
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestRepositoryImpl_ListProjects(t *testing.T) {
	// given
	testCtx, repo, userId := setupTestRepository(t)
	first := newStoredProject(t, testCtx, repo, userId, "Riverside Apartments")
	second := newStoredProject(t, testCtx, repo, userId, "Depot Upgrade")
	require.NoError(t, repo.SetStatus(testCtx, userId, second.Uid, StatusArchived))

	// when
	active, err := repo.ListProjects(testCtx, userId, false)
	require.NoError(t, err)
	all, err := repo.ListProjects(testCtx, userId, true)
	require.NoError(t, err)

	// then
	assert.Len(t, active, 1)
	assert.Equal(t, first.Uid, active[0].Uid)
	assert.Len(t, all, 2)
}

func TestRepositoryImpl_UpdateProject(t *testing.T) {
	// given
	testCtx, repo, userId := setupTestRepository(t)
	created := newStoredProject(t, testCtx, repo, userId, "Riverside Apartments")

	// when
	created.Name = "Riverside Apartments Stage 2"
	created.Client = "Harbour City Council"
	updated, err := repo.UpdateProject(testCtx, userId, created)

	// then
	require.NoError(t, err)
	assert.Equal(t, "Riverside Apartments Stage 2", updated.Name)
	assert.Equal(t, "Harbour City Council", updated.Client)
}

func TestRepositoryImpl_SetStatus_NotFound(t *testing.T) {
	// given
	testCtx, repo, userId := setupTestRepository(t)

	// when
	err := repo.SetStatus(testCtx, userId, uuid.New().String(), StatusArchived)

	// then
	assert.ErrorIs(t, err, ErrProjectNotFound)
}
