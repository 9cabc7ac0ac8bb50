// Command ws_bridge exposes a stdio program, by default `vibecli acp`, on a
// websocket so browser clients can speak ACP to it.
//
// Every websocket message is written to the program's stdin as one line.
// Every line the program prints comes back as {"type": "stdout"|"stderr", "data": line}.
package main

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type frame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var addr string
	cmd := &cobra.Command{
		Use:   "ws_bridge [command args...]",
		Short: "Bridge a stdio agent to a websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"vibecli", "acp"}
			}
			http.HandleFunc("/ws", handleWS(args))
			log.Info().Str("addr", addr).Strs("command", args).Msg("WebSocket bridge listening on /ws")
			return http.ListenAndServe(addr, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func handleWS(cmdArgs []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("Upgrade failed")
			return
		}
		defer conn.Close()

		cmd := exec.CommandContext(r.Context(), cmdArgs[0], cmdArgs[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Error().Err(err).Msg("Could not open agent stdin")
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Error().Err(err).Msg("Could not open agent stdout")
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Error().Err(err).Msg("Could not open agent stderr")
			return
		}
		if err := cmd.Start(); err != nil {
			log.Error().Err(err).Strs("command", cmdArgs).Msg("Could not start agent")
			return
		}
		log.Info().Int("pid", cmd.Process.Pid).Str("remote", r.RemoteAddr).Msg("Agent started")
		defer func() {
			stdin.Close()
			if err := cmd.Wait(); err != nil {
				log.Debug().Err(err).Msg("Agent exited")
			}
		}()

		// gorilla connections allow one concurrent writer.
		var writeMu sync.Mutex
		forward := func(kind string, src io.Reader) {
			scanner := bufio.NewScanner(src)
			scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
			for scanner.Scan() {
				data, _ := json.Marshal(frame{Type: kind, Data: scanner.Text()})
				writeMu.Lock()
				err := conn.WriteMessage(websocket.TextMessage, data)
				writeMu.Unlock()
				if err != nil {
					log.Debug().Err(err).Msg("WebSocket write failed")
					return
				}
			}
		}
		go forward("stdout", stdout)
		go forward("stderr", stderr)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Msg("WebSocket closed")
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Warn().Err(err).Msg("Agent stdin closed")
				return
			}
		}
	}
}
