package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	guuid "github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/cocaine-grape/worker"
)

func main() {
	myApp := cli.NewApp()
	myApp.Name = "cocaine-worker"
	myApp.Usage = "worker slave for a cocaine application engine"
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "app",
			Usage: "application name to serve; required",
		},
		cli.StringFlag{
			Name:  "uuid",
			Usage: "worker identity assigned by the engine; required",
		},
		cli.StringFlag{
			Name:  "runtime",
			Value: worker.DefaultRuntimeRoot,
			Usage: "engine runtime root holding per-application sockets",
		},
		cli.StringFlag{
			Name:  "metrics",
			Usage: "expose Prometheus metrics on this address, e.g. 127.0.0.1:9180",
		},
	}
	myApp.Action = run

	// The engine passes its own options to every slave it spawns; anything
	// this binary does not recognize is dropped rather than rejected.
	checkError(myApp.Run(filterArgs(os.Args, knownFlags(myApp.Flags))))
}

func run(c *cli.Context) error {
	appName := c.String("app")
	id := c.String("uuid")
	if appName == "" || id == "" {
		return errors.New("both --app and --uuid are required")
	}
	if _, err := guuid.Parse(id); err != nil {
		return errors.Wrapf(err, "malformed worker uuid %q", id)
	}

	opts := worker.DefaultOptions()
	opts.RuntimeRoot = c.String("runtime")

	if addr := c.String("metrics"); addr != "" {
		reg := prometheus.NewRegistry()
		opts.Observer = worker.NewPromObserver(reg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("metrics listener: %v", err)
			}
		}()
	}

	w, err := worker.Dial(appName, id, opts)
	if err != nil {
		return errors.Wrap(err, "unable to start the worker")
	}
	w.Register(appName, demoApp())

	return w.Run()
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}

// demoApp wires one handler of each factory kind.
func demoApp() *worker.App {
	app := worker.NewApp()
	app.On("event1", worker.NewHandlerFactory(newPageHandler))
	app.On("event2", worker.NewMethodFactory(onEvent2))
	app.On("echo", worker.NewFunctionFactory(echo))
	return app
}

// pageHandler is a class-style handler: a fresh instance per invocation,
// replying to the first input chunk with a rendered page.
type pageHandler struct {
	app      *worker.App
	event    string
	upstream worker.Stream
}

func newPageHandler(app *worker.App) worker.Handler {
	return &pageHandler{app: app}
}

func (h *pageHandler) Invoke(event string, upstream worker.Stream) error {
	h.event = event
	h.upstream = upstream
	return nil
}

func (h *pageHandler) Write(data []byte) error {
	h.app.Log().Debugf("rendering page for %s", h.event)
	body := "<html><body>" + h.event + "</body></html>"
	if err := h.upstream.Write([]byte(body)); err != nil {
		return err
	}
	return h.upstream.Close()
}

func (h *pageHandler) Close() error {
	return nil
}

func (h *pageHandler) Error(code int, message string) error {
	return nil
}

func onEvent2(app *worker.App, event string, input [][]byte) ([]byte, error) {
	return []byte("on_event2:" + event), nil
}

func echo(event string, input [][]byte) ([]byte, error) {
	parts := make([]string, len(input))
	for i, chunk := range input {
		parts[i] = string(chunk)
	}
	return []byte(event + ":" + strings.Join(parts, ",")), nil
}

// knownFlags collects every name and alias declared by flags.
func knownFlags(flags []cli.Flag) map[string]bool {
	known := make(map[string]bool)
	for _, f := range flags {
		for _, name := range strings.Split(f.GetName(), ",") {
			known[strings.TrimSpace(name)] = true
		}
	}
	return known
}

// filterArgs keeps the program name, bare arguments, and recognized
// options (with their values); unrecognized options and their values are
// dropped.
func filterArgs(args []string, known map[string]bool) []string {
	out := []string{args[0]}
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			out = append(out, arg)
			continue
		}
		name := strings.TrimLeft(arg, "-")
		inline := strings.IndexByte(name, '=') >= 0
		if inline {
			name = name[:strings.IndexByte(name, '=')]
		}
		hasValue := !inline && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-")
		if known[name] {
			out = append(out, arg)
			if hasValue {
				i++
				out = append(out, args[i])
			}
		} else if hasValue {
			i++
		}
	}
	return out
}
