package profiler

import "context"

// RepositoryStub is an in-memory Repository for service tests, keyed by
// project uid like the unique constraint on the real table.
type RepositoryStub struct {
	profiles map[string]Profile
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{profiles: make(map[string]Profile)}
}

func (r *RepositoryStub) Cleanup() {
	r.profiles = make(map[string]Profile)
}

func (r *RepositoryStub) UpsertProfile(_ context.Context, _ string, profile Profile) (Profile, error) {
	if current, ok := r.profiles[profile.ProjectUid]; ok {
		profile.Uid = current.Uid
	}
	r.profiles[profile.ProjectUid] = profile
	return profile, nil
}

func (r *RepositoryStub) GetByProject(_ context.Context, _ string, projectUid string) (Profile, error) {
	profile, ok := r.profiles[projectUid]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return profile, nil
}
