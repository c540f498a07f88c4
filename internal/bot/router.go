// Package bot turns chat commands into license operations and formats the
// replies. The Telegram transport in this package only moves text in and
// out; every decision is made by Router.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/adamscao/ealicense/internal/license"
	"github.com/adamscao/ealicense/internal/models"
)

// Reply texts
const (
	ReplyStart = "Welcome! Use /register <MT5_account_number> to get a license key.\n" +
		"/check <MT5_account_number> to view status.\n" +
		"/deactivate <MT5_account_number> to revoke."
	ReplyFallback      = "Use /register, /check, or /deactivate with MT5 account number."
	ReplyNotFound      = "No license found for this MT5 account."
	ReplyInvalid       = "License expired or inactive."
	ReplyDeactivated   = "License deactivated."
	ReplyNotAuthorized = "Not authorized."
	ReplyNoLicenses    = "No licenses."
	ReplyFailure       = "Something went wrong. Please try again later."
)

// CommandKind is the closed set of commands the bot understands.
type CommandKind int

const (
	KindText CommandKind = iota
	KindStart
	KindRegister
	KindCheck
	KindDeactivate
	KindList
)

var kindNames = map[string]CommandKind{
	"start":      KindStart,
	"register":   KindRegister,
	"check":      KindCheck,
	"deactivate": KindDeactivate,
	"list":       KindList,
}

// ParseKind maps a command name (without the leading slash) to its kind.
// The empty name is free text.
func ParseKind(name string) (CommandKind, bool) {
	if name == "" {
		return KindText, true
	}
	kind, ok := kindNames[strings.ToLower(name)]
	return kind, ok
}

func (k CommandKind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "text"
}

// Command is one inbound chat command
type Command struct {
	Name     string // without the leading slash; empty for free text
	Args     []string
	CallerID int64
}

// LicenseService is the lifecycle API the router drives.
// *license.Service satisfies it.
type LicenseService interface {
	Issue(ctx context.Context, ownerID int64, accountID string) (*models.License, error)
	Describe(ctx context.Context, accountID string) (license.Description, error)
	Revoke(ctx context.Context, accountID string) error
	ListFor(ctx context.Context, callerID int64) ([]*models.License, error)
}

// CommandObserver is notified once per handled command
type CommandObserver interface {
	ObserveCommand(command string)
}

type handlerFunc func(r *Router, ctx context.Context, cmd Command, account string) (string, error)

type route struct {
	arity   int
	usage   string
	handler handlerFunc
}

var routes = map[CommandKind]route{
	KindStart: {
		handler: (*Router).start,
	},
	KindRegister: {
		arity:   1,
		usage:   "Please provide your MT5 account number, e.g., /register 12345678",
		handler: (*Router).register,
	},
	KindCheck: {
		arity:   1,
		usage:   "Please provide MT5 account number, e.g., /check 12345678",
		handler: (*Router).check,
	},
	KindDeactivate: {
		arity:   1,
		usage:   "Please provide MT5 account number, e.g., /deactivate 12345678",
		handler: (*Router).deactivate,
	},
	KindList: {
		handler: (*Router).list,
	},
	KindText: {
		handler: (*Router).fallback,
	},
}

// Router dispatches commands to the license service
type Router struct {
	service  LicenseService
	logger   *zap.Logger
	observer CommandObserver
}

// NewRouter creates a router. observer may be nil.
func NewRouter(service LicenseService, logger *zap.Logger, observer CommandObserver) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		service:  service,
		logger:   logger.With(zap.String("component", "bot")),
		observer: observer,
	}
}

// Handle runs cmd and returns the reply text. An empty reply means the
// command is unknown and nothing should be sent.
func (r *Router) Handle(ctx context.Context, cmd Command) string {
	kind, ok := ParseKind(cmd.Name)
	if !ok {
		r.logger.Debug("ignoring unknown command", zap.String("command", cmd.Name))
		return ""
	}

	rt := routes[kind]
	if r.observer != nil {
		r.observer.ObserveCommand(kind.String())
	}

	var account string
	if rt.arity > 0 {
		if len(cmd.Args) < rt.arity || strings.TrimSpace(cmd.Args[0]) == "" {
			return rt.usage
		}
		account = strings.TrimSpace(cmd.Args[0])
	}

	reply, err := rt.handler(r, ctx, cmd, account)
	if err == nil {
		return reply
	}

	switch {
	case errors.Is(err, license.ErrValidation):
		return rt.usage
	case errors.Is(err, license.ErrNotAuthorized):
		return ReplyNotAuthorized
	default:
		r.logger.Error("command failed",
			zap.String("command", kind.String()),
			zap.Int64("caller_id", cmd.CallerID),
			zap.Error(err),
		)
		return ReplyFailure
	}
}

func (r *Router) start(context.Context, Command, string) (string, error) {
	return ReplyStart, nil
}

func (r *Router) fallback(context.Context, Command, string) (string, error) {
	return ReplyFallback, nil
}

func (r *Router) register(ctx context.Context, cmd Command, account string) (string, error) {
	l, err := r.service.Issue(ctx, cmd.CallerID, account)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("License generated for MT5 account %s: %s\nValid for %d days (until %s). Input this key in your EA settings.",
		l.AccountID, l.LicenseKey, license.ValidityDays, l.ExpiresOnString()), nil
}

func (r *Router) check(ctx context.Context, _ Command, account string) (string, error) {
	d, err := r.service.Describe(ctx, account)
	if err != nil {
		return "", err
	}
	return FormatDescription(d), nil
}

func (r *Router) deactivate(ctx context.Context, _ Command, account string) (string, error) {
	if err := r.service.Revoke(ctx, account); err != nil {
		return "", err
	}
	return ReplyDeactivated, nil
}

func (r *Router) list(ctx context.Context, cmd Command, _ string) (string, error) {
	licenses, err := r.service.ListFor(ctx, cmd.CallerID)
	if err != nil {
		return "", err
	}
	return FormatList(licenses), nil
}

// FormatDescription renders the /check reply
func FormatDescription(d license.Description) string {
	switch {
	case !d.Found:
		return ReplyNotFound
	case d.Valid:
		return fmt.Sprintf("Active license: %s (Expires: %s)", d.License.LicenseKey, d.License.ExpiresOnString())
	default:
		return ReplyInvalid
	}
}

// FormatList renders one "account: key, expires_on, status" line per license
func FormatList(licenses []*models.License) string {
	if len(licenses) == 0 {
		return ReplyNoLicenses
	}

	lines := make([]string, 0, len(licenses))
	for _, l := range licenses {
		lines = append(lines, fmt.Sprintf("%s: %s, %s, %s", l.AccountID, l.LicenseKey, l.ExpiresOnString(), l.Status))
	}
	return strings.Join(lines, "\n")
}
