// kstu is the terminal front-end over the client core. It plays the role of
// the mobile UI: routing user actions to the session controller and the
// attendance protocol, and supplying device capabilities (QR payloads, a
// photo file, coordinates) from flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"kstu-mobile/internal/api"
	"kstu-mobile/internal/attendance"
	"kstu-mobile/internal/config"
	attdomain "kstu-mobile/internal/domain/attendance"
	"kstu-mobile/internal/gateway"
	"kstu-mobile/internal/notify"
	xerrors "kstu-mobile/internal/pkg/errors"
	"kstu-mobile/internal/session"
	"kstu-mobile/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	a, err := newApp(config.Load(), logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.vault.Close()

	ctx := context.Background()
	a.session.Initialize(ctx)

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: kstu <command> [flags]

commands:
  login       -username <u> -password <p>
  unlock      -pin <code>
  set-pin     -pin <code>
  biometric   -enabled <true|false>
  logout
  status
  profile
  tasks | documents | news
  checkin     start  -qr <payload> -lat <f> -lon <f>
  checkin     finish -lat <f> -lon <f> -photo <file>
  checkin     status
  history
  watch`)
}

type app struct {
	cfg      config.AppConfig
	logger   *zap.Logger
	vault    *store.Vault
	session  *session.Controller
	client   *api.Client
}

func newApp(cfg config.AppConfig, logger *zap.Logger) (*app, error) {
	vault, err := store.Open(cfg.VaultPath)
	if err != nil {
		// Boot must not die on storage trouble; run on a throwaway vault
		// and behave as a signed-out device.
		logger.Warn("vault unavailable, using in-memory storage", zap.Error(err))
		vault, err = store.Open(":memory:")
		if err != nil {
			return nil, err
		}
	}

	authClient := api.NewAuthClient(cfg.BaseURL, cfg.RequestTimeout, logger)
	sess := session.NewController(vault, authClient, logger)
	gw := gateway.New(sess, authClient, logger, cfg.RequestTimeout, cfg.UploadTimeout)
	client := api.NewClient(cfg.BaseURL, gw, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		vault:   vault,
		session: sess,
		client:  client,
	}, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.cmdLogin(ctx, args)
	case "unlock":
		return a.cmdUnlock(ctx, args)
	case "set-pin":
		return a.cmdSetPin(ctx, args)
	case "biometric":
		return a.cmdBiometric(ctx, args)
	case "logout":
		a.session.Logout(ctx)
		fmt.Println("logged out")
		return nil
	case "status":
		return a.cmdStatus(ctx)
	case "profile":
		return a.cmdProfile(ctx)
	case "tasks":
		return a.cmdTasks(ctx)
	case "documents":
		return a.cmdDocuments(ctx)
	case "news":
		return a.cmdNews(ctx)
	case "checkin":
		return a.cmdCheckIn(ctx, args)
	case "history":
		return a.cmdHistory(ctx)
	case "watch":
		return a.cmdWatch(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "portal username")
	password := fs.String("password", "", "portal password")
	fs.Parse(args)

	if err := a.session.Login(ctx, *username, *password); err != nil {
		if errors.Is(err, xerrors.ErrAuthenticationFailed) {
			return fmt.Errorf("%s", a.session.LastError())
		}
		return err
	}

	user := a.session.User()
	fmt.Printf("signed in as %s (%s)\n", user.FullName(), user.Role)
	return nil
}

func (a *app) cmdUnlock(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	pin := fs.String("pin", "", "device PIN")
	fs.Parse(args)

	if !a.session.HasPin(ctx) {
		return fmt.Errorf("no PIN on this device yet, run: kstu set-pin")
	}
	if !a.session.VerifyPinCode(ctx, *pin) {
		return xerrors.ErrInvalidPIN
	}
	if err := a.session.RefreshAccessToken(ctx); err != nil {
		return fmt.Errorf("unlock succeeded but session could not be resumed, log in again: %w", err)
	}

	user := a.session.User()
	fmt.Printf("unlocked, signed in as %s\n", user.FullName())
	return nil
}

func (a *app) cmdSetPin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-pin", flag.ExitOnError)
	pin := fs.String("pin", "", "device PIN")
	fs.Parse(args)

	if len(*pin) < 4 {
		return fmt.Errorf("pin must be at least 4 digits")
	}
	if err := a.session.SetPinCode(ctx, *pin); err != nil {
		return err
	}
	fmt.Println("pin saved")
	return nil
}

func (a *app) cmdBiometric(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("biometric", flag.ExitOnError)
	enabled := fs.Bool("enabled", false, "enable biometric unlock")
	fs.Parse(args)

	if err := a.session.SetBiometricEnabled(ctx, *enabled); err != nil {
		return err
	}
	fmt.Println("biometric unlock:", *enabled)
	return nil
}

func (a *app) cmdStatus(ctx context.Context) error {
	fmt.Println("state:", a.session.State())
	if user := a.session.User(); user != nil {
		fmt.Printf("user: %s <%s> role=%s notifications=%d\n",
			user.FullName(), user.Email, user.Role, user.NotificationCount)
	}
	fmt.Println("pin set:", a.session.HasPin(ctx))
	fmt.Println("biometric:", a.session.BiometricEnabled(ctx))
	return nil
}

func (a *app) cmdProfile(ctx context.Context) error {
	p, err := a.client.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s\n%s, %s\n%s %s\n",
		p.LastName, p.FirstName, p.Patronymic, p.Department, p.Position, p.Email, p.Phone)
	return nil
}

func (a *app) cmdTasks(ctx context.Context) error {
	tasks, err := a.client.Tasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		fmt.Printf("[%s] %s (until %s)\n", t.Status, t.Title, t.Deadline)
	}
	return nil
}

func (a *app) cmdDocuments(ctx context.Context) error {
	docs, err := a.client.Documents(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Printf("%s  %s (%s)\n", d.Date, d.Title, d.URL)
	}
	return nil
}

func (a *app) cmdNews(ctx context.Context) error {
	items, err := a.client.News(ctx)
	if err != nil {
		return err
	}
	for _, n := range items {
		fmt.Printf("%s  %s\n", n.PublishedAt, n.Title)
	}
	return nil
}

func (a *app) cmdHistory(ctx context.Context) error {
	records, err := a.client.History(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%s %s [%s] start=%s finish=%s worked=%s\n",
			r.Date, r.Auditorium, r.Status, r.StartGeo, r.FinishGeo, r.WorkingTime)
	}
	return nil
}

func (a *app) cmdCheckIn(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kstu checkin <start|finish|status> [flags]")
	}
	sub, args := args[0], args[1:]

	switch sub {
	case "start":
		fs := flag.NewFlagSet("checkin start", flag.ExitOnError)
		qr := fs.String("qr", "", "scanned QR payload")
		lat := fs.Float64("lat", 0, "current latitude")
		lon := fs.Float64("lon", 0, "current longitude")
		fs.Parse(args)

		loc := flagLocator{
			coords:  attdomain.Coordinates{Latitude: *lat, Longitude: *lon},
			granted: flagProvided(fs, "lat") && flagProvided(fs, "lon"),
		}
		p := a.buildProtocol(loc, fileCamera{})
		if err := p.Sync(ctx); err != nil {
			return err
		}
		if err := p.Start(ctx, *qr); err != nil {
			return err
		}
		fmt.Println("check-in started")
		return nil

	case "finish":
		fs := flag.NewFlagSet("checkin finish", flag.ExitOnError)
		lat := fs.Float64("lat", 0, "current latitude")
		lon := fs.Float64("lon", 0, "current longitude")
		photo := fs.String("photo", "", "path to the check-out photo")
		fs.Parse(args)

		loc := flagLocator{
			coords:  attdomain.Coordinates{Latitude: *lat, Longitude: *lon},
			granted: flagProvided(fs, "lat") && flagProvided(fs, "lon"),
		}
		p := a.buildProtocol(loc, fileCamera{path: *photo})
		if err := p.Sync(ctx); err != nil {
			return err
		}
		err := p.Finish(ctx)
		var tooFar *xerrors.TooFarError
		if errors.As(err, &tooFar) {
			return fmt.Errorf("you are %dm from the check-in point, move within %dm and retry",
				tooFar.Distance, tooFar.Limit)
		}
		if err != nil {
			return err
		}
		fmt.Println("check-in finished")
		return nil

	case "status":
		p := a.buildProtocol(flagLocator{}, fileCamera{})
		if err := p.Sync(ctx); err != nil {
			return err
		}
		if open := p.Open(); open != nil {
			fmt.Printf("open check-in at %s (started at %s)\n", open.Auditorium, open.Start.Format())
		} else {
			fmt.Println("no open check-in")
		}
		return nil

	default:
		return fmt.Errorf("unknown checkin subcommand %q", sub)
	}
}

func (a *app) buildProtocol(loc attendance.Locator, cam attendance.Camera) *attendance.Protocol {
	return attendance.NewProtocol(a.client, loc, cam, a.cfg.QRAuthority, a.logger)
}

func (a *app) cmdWatch(ctx context.Context) error {
	token := a.session.AccessToken()
	if token == "" {
		return xerrors.ErrSessionExpired
	}

	stream, err := notify.Dial(ctx, a.cfg.WSURL, token, a.logger)
	if err != nil {
		return err
	}
	defer stream.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("watching notifications, Ctrl-C to stop")
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return fmt.Errorf("notification stream closed")
			}
			fmt.Println("unread notifications:", ev.Count)
		case <-quit:
			return nil
		}
	}
}

func flagProvided(fs *flag.FlagSet, name string) bool {
	seen := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			seen = true
		}
	})
	return seen
}

// flagLocator satisfies attendance.Locator from command-line coordinates.
type flagLocator struct {
	coords  attdomain.Coordinates
	granted bool
}

func (l flagLocator) RequestPermission(ctx context.Context) error {
	if !l.granted {
		return xerrors.ErrPermissionDenied
	}
	return nil
}

func (l flagLocator) Current(ctx context.Context) (attdomain.Coordinates, error) {
	return l.coords, nil
}

// fileCamera satisfies attendance.Camera from a file path.
type fileCamera struct {
	path string
}

func (c fileCamera) CapturePhoto(ctx context.Context) ([]byte, error) {
	if c.path == "" {
		return nil, xerrors.ErrPhotoCaptureCancelled
	}
	img, err := os.ReadFile(c.path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrPhotoCaptureFailed, err.Error())
	}
	return img, nil
}
