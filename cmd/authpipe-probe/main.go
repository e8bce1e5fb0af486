// Command authpipe-probe sends one request through an authpipe pipeline and
// reports what the pipeline did: proactive or reactive refresh, replay, and the
// final session state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/MrEthical07/authpipe"
	"github.com/MrEthical07/authpipe/internal/cliconfig"
	"github.com/MrEthical07/authpipe/metrics/export/prometheus"
	"github.com/MrEthical07/authpipe/session"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config path (default AUTHPIPE_CONFIG or env only)")
		target     = flag.String("url", "", "URL to request")
		method     = flag.String("method", http.MethodGet, "HTTP method")
		data       = flag.String("data", "", "request body")
		access     = flag.String("access-token", "", "sign in with this access token before sending")
		refreshTok = flag.String("refresh-token", "", "refresh token used with -access-token")
		signOut    = flag.Bool("sign-out", false, "clear the stored session and exit")
		showMetric = flag.Bool("metrics", false, "print pipeline metrics after the request")
	)
	flag.Parse()

	if err := run(*configPath, *target, *method, *data, *access, *refreshTok, *signOut, *showMetric); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, target, method, data, access, refreshTok string, signOut, showMetrics bool) error {
	cfg, err := cliconfig.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	pcfg, err := cfg.AuthpipeConfig()
	if err != nil {
		return err
	}
	if showMetrics {
		pcfg.Metrics.Enabled = true
		pcfg.Metrics.EnableLatencyHistograms = true
	}

	ctx := context.Background()
	store, closeStore, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	endpoint, err := cfg.RefreshEndpoint()
	if err != nil {
		return err
	}

	b := authpipe.New().
		WithConfig(pcfg).
		WithStore(store).
		WithEndpoint(endpoint).
		WithLogger(logger)
	if pcfg.Audit.Enabled {
		b.WithAuditSink(authpipe.NewJSONWriterSink(os.Stderr))
	}
	p, err := b.Build()
	if err != nil {
		return err
	}
	defer p.Close()

	for _, w := range pcfg.Lint().BySeverity(authpipe.LintWarn) {
		logger.WithFields(logrus.Fields{"code": w.Code, "severity": w.Severity.String()}).Warn(w.Message)
	}

	if signOut {
		return p.SignOut(ctx)
	}
	if access != "" {
		creds := session.Credentials{AccessToken: access, RefreshToken: refreshTok}
		if err := p.SignIn(ctx, creds, nil); err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
	}
	if target == "" {
		return errors.New("-url is required")
	}

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}

	resp, sendErr := p.Send(ctx, req)
	if resp != nil {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		fmt.Printf("status: %d\n", resp.StatusCode)
		if resp.Request != nil && pcfg.Transport.RequestIDHeader != "" {
			fmt.Printf("request id: %s\n", resp.Request.Header.Get(pcfg.Transport.RequestIDHeader))
		}
		fmt.Printf("classification: %s\n", authpipe.Classify(resp, nil))
		fmt.Println(string(payload))
	}

	st, err := p.Session(ctx)
	if err != nil {
		logger.WithError(err).Warn("read session")
	} else {
		fmt.Printf("signed in: %t\n", st.SignedIn())
		if st.User != nil {
			fmt.Printf("user: %s\n", st.User.ID)
		}
	}

	if showMetrics {
		fmt.Print(prometheus.NewExporter(p).Render())
	}
	return sendErr
}
