package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/ealicense/internal/db"
	"github.com/adamscao/ealicense/internal/db/repository"
	"github.com/adamscao/ealicense/internal/license"
	"github.com/adamscao/ealicense/internal/models"
)

const (
	adminID = int64(42)
	userID  = int64(555)
)

// spyService records calls and forwards to the real service.
type spyService struct {
	LicenseService
	mu    sync.Mutex
	calls []string
}

func (s *spyService) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *spyService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spyService) Issue(ctx context.Context, ownerID int64, accountID string) (*models.License, error) {
	s.record("issue")
	return s.LicenseService.Issue(ctx, ownerID, accountID)
}

func (s *spyService) Describe(ctx context.Context, accountID string) (license.Description, error) {
	s.record("describe")
	return s.LicenseService.Describe(ctx, accountID)
}

func (s *spyService) Revoke(ctx context.Context, accountID string) error {
	s.record("revoke")
	return s.LicenseService.Revoke(ctx, accountID)
}

func (s *spyService) ListFor(ctx context.Context, callerID int64) ([]*models.License, error) {
	s.record("list")
	return s.LicenseService.ListFor(ctx, callerID)
}

// brokenService fails every call with a storage error.
type brokenService struct{}

var errBroken = &license.StorageError{Op: "test", Err: errors.New("disk I/O error")}

func (brokenService) Issue(context.Context, int64, string) (*models.License, error) {
	return nil, errBroken
}
func (brokenService) Describe(context.Context, string) (license.Description, error) {
	return license.Description{}, errBroken
}
func (brokenService) Revoke(context.Context, string) error { return errBroken }
func (brokenService) ListFor(context.Context, int64) ([]*models.License, error) {
	return nil, errBroken
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveCommand(command string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[command]++
}

type routerFixture struct {
	router   *Router
	spy      *spyService
	verifier *license.Verifier
	now      time.Time
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "licenses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	repo := repository.NewLicenseRepository(database.DB)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	spy := &spyService{LicenseService: license.NewService(repo, adminID, license.WithClock(clock))}

	return &routerFixture{
		router:   NewRouter(spy, nil, nil),
		spy:      spy,
		verifier: license.NewVerifier(repo, license.WithClock(clock)),
		now:      now,
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name string
		kind CommandKind
		ok   bool
	}{
		{"", KindText, true},
		{"start", KindStart, true},
		{"register", KindRegister, true},
		{"Check", KindCheck, true},
		{"deactivate", KindDeactivate, true},
		{"list", KindList, true},
		{"help", 0, false},
	}

	for _, tt := range tests {
		kind, ok := ParseKind(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, tt.kind, kind, tt.name)
		}
	}
}

func TestRouter_Start(t *testing.T) {
	f := newRouterFixture(t)

	reply := f.router.Handle(context.Background(), Command{Name: "start", CallerID: userID})
	assert.Equal(t, ReplyStart, reply)
	assert.Empty(t, f.spy.Calls())
}

func TestRouter_FreeText(t *testing.T) {
	f := newRouterFixture(t)

	reply := f.router.Handle(context.Background(), Command{CallerID: userID})
	assert.Equal(t, ReplyFallback, reply)
	assert.Empty(t, f.spy.Calls())
}

func TestRouter_UnknownCommandIsIgnored(t *testing.T) {
	f := newRouterFixture(t)

	assert.Empty(t, f.router.Handle(context.Background(), Command{Name: "help", CallerID: userID}))
	assert.Empty(t, f.spy.Calls())
}

func TestRouter_MissingArgumentNeverTouchesService(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	tests := map[string]string{
		"register":   "Please provide your MT5 account number, e.g., /register 12345678",
		"check":      "Please provide MT5 account number, e.g., /check 12345678",
		"deactivate": "Please provide MT5 account number, e.g., /deactivate 12345678",
	}

	for name, usage := range tests {
		assert.Equal(t, usage, f.router.Handle(ctx, Command{Name: name, CallerID: userID}))
		assert.Equal(t, usage, f.router.Handle(ctx, Command{Name: name, Args: []string{"  "}, CallerID: userID}))
	}
	assert.Empty(t, f.spy.Calls())

	// the admin listing shows that nothing was written
	assert.Equal(t, ReplyNoLicenses, f.router.Handle(ctx, Command{Name: "list", CallerID: adminID}))
}

func TestRouter_Register(t *testing.T) {
	f := newRouterFixture(t)

	reply := f.router.Handle(context.Background(), Command{Name: "register", Args: []string{"2002"}, CallerID: userID})

	assert.Equal(t,
		"License generated for MT5 account 2002: LC-2002-20261017120000\n"+
			"Valid for 30 days (until 2026-11-16). Input this key in your EA settings.",
		reply)
	assert.Equal(t, []string{"issue"}, f.spy.Calls())
}

func TestRouter_CheckAndDeactivate(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	assert.Equal(t, ReplyNotFound, f.router.Handle(ctx, Command{Name: "check", Args: []string{"2002"}, CallerID: userID}))

	f.router.Handle(ctx, Command{Name: "register", Args: []string{"2002"}, CallerID: userID})
	assert.Equal(t,
		"Active license: LC-2002-20261017120000 (Expires: 2026-11-16)",
		f.router.Handle(ctx, Command{Name: "check", Args: []string{"2002"}, CallerID: userID}))

	assert.Equal(t, ReplyDeactivated, f.router.Handle(ctx, Command{Name: "deactivate", Args: []string{"2002"}, CallerID: userID}))
	assert.Equal(t, ReplyDeactivated, f.router.Handle(ctx, Command{Name: "deactivate", Args: []string{"2002"}, CallerID: userID}))
	assert.Equal(t, ReplyInvalid, f.router.Handle(ctx, Command{Name: "check", Args: []string{"2002"}, CallerID: userID}))

	assert.Equal(t, ReplyDeactivated, f.router.Handle(ctx, Command{Name: "deactivate", Args: []string{"unknown"}, CallerID: userID}))
}

func TestRouter_ListRequiresAdmin(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	f.router.Handle(ctx, Command{Name: "register", Args: []string{"1001"}, CallerID: userID})

	reply := f.router.Handle(ctx, Command{Name: "list", CallerID: userID})
	assert.Equal(t, ReplyNotAuthorized, reply)
	assert.NotContains(t, reply, "1001")

	reply = f.router.Handle(ctx, Command{Name: "list", CallerID: adminID})
	assert.Equal(t, "1001: LC-1001-20261017120000, 2026-11-16, active", reply)
}

func TestRouter_ListFormatsEveryRecord(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	f.router.Handle(ctx, Command{Name: "register", Args: []string{"1001"}, CallerID: userID})
	f.router.Handle(ctx, Command{Name: "register", Args: []string{"1002"}, CallerID: userID})
	f.router.Handle(ctx, Command{Name: "deactivate", Args: []string{"1002"}, CallerID: userID})

	lines := strings.Split(f.router.Handle(ctx, Command{Name: "list", CallerID: adminID}), "\n")
	assert.ElementsMatch(t, []string{
		"1001: LC-1001-20261017120000, 2026-11-16, active",
		"1002: LC-1002-20261017120000, 2026-11-16, inactive",
	}, lines)
}

func TestRouter_EndToEnd(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	f.router.Handle(ctx, Command{Name: "register", Args: []string{"2002"}, CallerID: userID})
	key := license.GenerateKey("2002", f.now)

	result, err := f.verifier.Verify(ctx, "2002", key)
	require.NoError(t, err)
	assert.Equal(t, license.ResultValid, result)

	f.router.Handle(ctx, Command{Name: "deactivate", Args: []string{"2002"}, CallerID: userID})

	result, err = f.verifier.Verify(ctx, "2002", key)
	require.NoError(t, err)
	assert.Equal(t, 403, result.HTTPStatus())

	assert.Equal(t, ReplyInvalid, f.router.Handle(ctx, Command{Name: "check", Args: []string{"2002"}, CallerID: userID}))
}

func TestRouter_StorageFailureReply(t *testing.T) {
	r := NewRouter(brokenService{}, nil, nil)
	ctx := context.Background()

	assert.Equal(t, ReplyFailure, r.Handle(ctx, Command{Name: "register", Args: []string{"1"}, CallerID: userID}))
	assert.Equal(t, ReplyFailure, r.Handle(ctx, Command{Name: "check", Args: []string{"1"}, CallerID: userID}))
	assert.Equal(t, ReplyFailure, r.Handle(ctx, Command{Name: "deactivate", Args: []string{"1"}, CallerID: userID}))
	assert.Equal(t, ReplyFailure, r.Handle(ctx, Command{Name: "list", CallerID: adminID}))
}

func TestRouter_ObservesCommands(t *testing.T) {
	obs := &countingObserver{}
	r := NewRouter(brokenService{}, nil, obs)
	ctx := context.Background()

	r.Handle(ctx, Command{Name: "start"})
	r.Handle(ctx, Command{Name: "start"})
	r.Handle(ctx, Command{})
	r.Handle(ctx, Command{Name: "bogus"})

	assert.Equal(t, map[string]int{"start": 2, "text": 1}, obs.counts)
}

func TestFormatList_Empty(t *testing.T) {
	assert.Equal(t, ReplyNoLicenses, FormatList(nil))
}
