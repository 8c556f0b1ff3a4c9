package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/mdns"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/webserver"
)

const serveMDNSServiceType = "_brood._tcp"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only web dashboard of agents",
	Long: `Start an HTTP/WebSocket server showing the agents of a working directory
and streaming their logs as they grow.

By default the server binds to 127.0.0.1. Use --expose to bind to all
interfaces; an auth token is then generated (unless given), the URL is
printed as a QR code and advertised over mDNS.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("dir", "", "Working directory (default: current)")
	serveCmd.Flags().String("host", "127.0.0.1", "Address to bind")
	serveCmd.Flags().Int("port", 8080, "Port to bind (0 picks a free port)")
	serveCmd.Flags().Bool("expose", false, "Bind to 0.0.0.0 and require an auth token")
	serveCmd.Flags().String("auth-token", "", "Require this token for API and WebSocket access")
	serveCmd.Flags().Bool("mdns", false, "Advertise the dashboard over mDNS")
	serveCmd.Flags().Duration("interval", time.Second, "Log polling interval for live streams")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	r, err := openRoster(cmd)
	if err != nil {
		return err
	}
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	expose, _ := cmd.Flags().GetBool("expose")
	authToken, _ := cmd.Flags().GetString("auth-token")
	enableMDNS, _ := cmd.Flags().GetBool("mdns")
	interval, _ := cmd.Flags().GetDuration("interval")
	if expose {
		host = "0.0.0.0"
		if strings.TrimSpace(authToken) == "" {
			authToken = generateToken()
		}
	}

	srv := webserver.New(r, webserver.Options{
		Host:         host,
		Port:         port,
		AuthToken:    authToken,
		PollInterval: interval,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting web server: %w", err)
	}

	url := srv.URL()
	w := cmd.OutOrStdout()
	// OSC 8 hyperlink for terminals that support it.
	fmt.Fprintf(w, "\033]8;;%s\033\\%s\033]8;;\033\\\n", url, url)
	fmt.Fprintf(w, "%sServing agents of %s%s\n", colorDim, r.Cwd, colorReset)
	if srv.Exposed() {
		if err := printQRCode(w, url); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to render QR code: %v\n", err)
		}
	}

	if srv.Exposed() || enableMDNS {
		server, err := startMDNSService(filepath.Base(r.Cwd), srv.Port(), url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start mDNS advertisement: %v\n", err)
		} else {
			defer server.Shutdown()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down web server: %w", err)
	}
	return nil
}

func generateToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func startMDNSService(name string, port int, url string) (*mdns.Server, error) {
	if port <= 0 {
		return nil, fmt.Errorf("invalid port for mDNS advertisement: %d", port)
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "brood"
	}
	// The token stays out of the TXT records; the URL is advertised bare.
	if i := strings.Index(url, "?"); i >= 0 {
		url = url[:i]
	}
	service, err := mdns.NewMDNSService(name, serveMDNSServiceType, "local", "", port, nil, []string{
		"project=" + name,
		"url=" + url,
	})
	if err != nil {
		return nil, err
	}
	return mdns.NewServer(&mdns.Config{Zone: service})
}

func printQRCode(w io.Writer, url string) error {
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, code.ToString(false))
	return err
}
