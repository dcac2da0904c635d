package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

type consoleLine struct {
	text string
	err  error
}

// ConsoleCodeProvider prompts on w and reads one line from r per call. The
// line may be the bare code or the whole redirect URL; in the latter case the
// state is returned too. A single goroutine owns r for the provider's
// lifetime, so a line typed after a cancelled prompt goes to the next call.
func ConsoleCodeProvider(r io.Reader, w io.Writer) CodeProvider {
	lines := make(chan consoleLine)
	var once sync.Once
	readLines := func() {
		br := bufio.NewReader(r)
		for {
			text, err := br.ReadString('\n')
			if errors.Is(err, io.EOF) && text != "" {
				err = nil
			}
			lines <- consoleLine{text: text, err: err}
			if err != nil {
				close(lines)
				return
			}
		}
	}

	return func(ctx context.Context) (AuthorizationGrant, error) {
		once.Do(func() { go readLines() })
		fmt.Fprint(w, "Paste the authorization code or the full redirect URL: ")

		select {
		case <-ctx.Done():
			return AuthorizationGrant{}, ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return AuthorizationGrant{}, fmt.Errorf("read authorization code: %w", io.EOF)
			}
			if l.err != nil {
				return AuthorizationGrant{}, fmt.Errorf("read authorization code: %w", l.err)
			}
			return parseCodeInput(l.text)
		}
	}
}

func parseCodeInput(input string) (AuthorizationGrant, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return AuthorizationGrant{}, errors.New("no authorization code entered")
	}
	if !strings.Contains(input, "code=") && !strings.Contains(input, "error=") {
		return AuthorizationGrant{Code: input, Pasted: true}, nil
	}

	raw := input
	if i := strings.Index(input, "?"); i >= 0 {
		raw = input[i+1:]
	}
	params, err := url.ParseQuery(raw)
	if err != nil {
		return AuthorizationGrant{}, fmt.Errorf("parse redirect url: %w", err)
	}

	if e := params.Get("error"); e != "" {
		return AuthorizationGrant{}, fmt.Errorf("authorization denied: %s: %s", e, params.Get("error_description"))
	}
	code := params.Get("code")
	if code == "" {
		return AuthorizationGrant{}, errors.New("redirect url has no code parameter")
	}
	return AuthorizationGrant{Code: code, State: params.Get("state")}, nil
}

// CallbackCodeProvider listens on addr for the OAuth redirect to path and
// returns the first code that arrives with a state.
func CallbackCodeProvider(addr, path string) CodeProvider {
	return func(ctx context.Context) (AuthorizationGrant, error) {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return AuthorizationGrant{}, fmt.Errorf("listen for oauth callback: %w", err)
		}
		return serveCallback(ctx, ln, path)
	}
}

type callbackResult struct {
	grant AuthorizationGrant
	err   error
}

// serveCallback answers redirects on ln until one carries both a code and a
// state. Requests missing either get a 400 and the listener keeps waiting.
func serveCallback(ctx context.Context, ln net.Listener, path string) (AuthorizationGrant, error) {
	results := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})

	app.Get(path, func(c *fiber.Ctx) error {
		if e := c.Query("error"); e != "" {
			deliver(callbackResult{err: fmt.Errorf("authorization denied: %s: %s", e, c.Query("error_description"))})
			return c.Status(fiber.StatusBadRequest).SendString("Authorization was denied. You can close this window.")
		}

		code := c.Query("code")
		if code == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Missing code parameter.")
		}
		state := c.Query("state")
		if state == "" {
			slog.Info("ignoring oauth callback without state")
			return c.Status(fiber.StatusBadRequest).SendString("Missing state parameter.")
		}

		deliver(callbackResult{grant: AuthorizationGrant{Code: code, State: state}})
		return c.SendString("Authorization received. You can close this window.")
	})

	go func() {
		if err := app.Listener(ln); err != nil {
			deliver(callbackResult{err: fmt.Errorf("oauth callback server: %w", err)})
		}
	}()
	defer func() {
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			slog.Info(err.Error())
		}
		ln.Close()
	}()

	slog.Info("waiting for oauth callback", "addr", ln.Addr().String(), "path", path)

	select {
	case <-ctx.Done():
		return AuthorizationGrant{}, ctx.Err()
	case r := <-results:
		return r.grant, r.err
	}
}
