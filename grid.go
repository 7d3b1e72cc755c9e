// Gridlock
//
// Each player connects over a websocket and either creates a room (choosing
// a display name and a password) or joins one by its password. The creator
// is the host. Players privately pick a cell on the grid; everyone can see
// *that* a player has picked, never *which* cell. A player may ask another
// to reveal their cell; the target accepts or rejects, and on acceptance the
// requester alone receives a one-time snapshot of the target's current cell.
//
// Features:
// - Single websocket endpoint: /grid/ws, one room registry per server
// - Rooms keyed by user-chosen password, unique while the room exists
// - Host-only start/end; non-host attempts are silently ignored
// - Rooms vanish when their last member leaves, freeing the password
// - Idle rooms optionally reaped after --session-timeout
// - In-browser QR button to share the game page, backed by go-qrcode

package main

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func wireError(err error) ErrorMessage {
	var code string

	switch {
	case errors.Is(err, ErrKeyTaken):
		code = codeKeyTaken
	case errors.Is(err, ErrRoomNotFound):
		code = codeRoomNotFound
	case errors.Is(err, ErrGameStarted):
		code = codeGameStarted
	}

	return ErrorMessage{
		Type:    "error",
		Code:    code,
		Message: err.Error(),
	}
}

// dispatch validates one inbound action against the registry and room
// state and applies it. Failures are reported to the acting client
// only; unauthorized and malformed actions are dropped.
func dispatch(cfg *Config, reg *Registry, c *Client, msg ClientMessage) {
	switch msg.Type {
	case "create_room":
		if msg.Key == "" || msg.Name == "" {
			return
		}

		if _, err := reg.Create(cfg, msg.Key, msg.Name, c.id); err != nil {
			c.trySend(wireError(err))
			return
		}

		c.trySend(RoomCreatedMessage{
			Type: "room_created",
			Name: msg.Name,
			Key:  msg.Key,
		})

	case "join_room":
		if msg.PlayerName == "" {
			return
		}

		if _, err := reg.Join(cfg, msg.Key, c, msg.PlayerName, msg.PlayerColor); err != nil {
			c.trySend(wireError(err))
		}

	case "start_room":
		room, err := reg.Get(msg.Key)
		if err != nil {
			c.trySend(wireError(err))
			return
		}

		room.Start(cfg, c.id)

	case "end_room":
		if err := reg.End(cfg, msg.Key, c.id); err != nil {
			c.trySend(wireError(err))
		}

	case "select_cell":
		room, err := reg.Get(msg.Key)
		if err != nil {
			c.trySend(wireError(err))
			return
		}

		room.SelectCell(c.id, msg.CellID)

	case "request_reveal":
		room, err := reg.Get(msg.Key)
		if err != nil {
			c.trySend(wireError(err))
			return
		}

		room.RequestReveal(c.id, msg.TargetPlayerID)

	case "respond_reveal":
		room, err := reg.Get(msg.Key)
		if err != nil {
			c.trySend(wireError(err))
			return
		}

		room.RespondReveal(cfg, c.id, msg.RequesterID, msg.Accepted)

	default:
		// ignore unknown types
	}
}

func serveWSForRegistry(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := newClient(conn)

		logf(cfg, "ROOMS: Connection %s established from %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(cfg, reg)
	}
}

// QR handler: generates a PNG QR code for the game page URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at $path/qr; strip the trailing "/qr" to get the page URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func gridPageHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(gridHTML))
	}
}

// registerGridGame sets up routes so that:
//   - $path      → HTML client
//   - $path/ws   → WebSocket endpoint shared by all rooms
//   - $path/qr   → PNG QR code for the game page URL
func registerGridGame(cfg *Config, path string, mux *httprouter.Router) {
	reg := newRegistry()

	if cfg.sessionTimeout > 0 {
		go reg.reaperLoop(cfg)
	}

	mux.GET(cfg.prefix+path, gridPageHandler(cfg))

	mux.GET(cfg.prefix+path+"/ws", serveWSForRegistry(cfg, reg))

	mux.GET(cfg.prefix+path+"/qr", qrHandler)
}

// Simple HTML client for quick testing
const gridHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Gridlock</title>
<style>
  body { font-family: system-ui, -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; }
  h1 { margin-bottom: 0.5rem; }
  #status { margin-bottom: 1rem; font-size: 0.9rem; }
  #grid { display: grid; grid-template-columns: repeat(5, 3rem); gap: 4px; margin: 1rem 0; }
  #grid button { height: 3rem; }
  #grid button.mine { outline: 3px solid black; }
  #members li { padding: 0.25rem 0; border-bottom: 1px solid #ddd; list-style: none; }
  #log { margin-top: 1rem; font-size: 0.85rem; white-space: pre-line; }
</style>
</head>
<body>
<h1>Gridlock</h1>
<div id="status">Connecting…</div>
<div>
  <button id="create">Create room</button>
  <button id="join">Join room</button>
  <button id="start" hidden>Start game</button>
  <button id="end" hidden>End game</button>
  <a href="grid/qr">Share</a>
</div>
<div id="grid"></div>
<ul id="members"></ul>
<div id="log"></div>

<script>
(function() {
  const statusEl = document.getElementById('status');
  const gridEl = document.getElementById('grid');
  const membersEl = document.getElementById('members');
  const logEl = document.getElementById('log');

  let key = '';
  let isHost = false;
  let selected = '';

  const proto = (location.protocol === 'https:') ? 'wss://' : 'ws://';
  const wsPath = location.pathname.replace(/\/$/, '') + '/ws';
  const ws = new WebSocket(proto + location.host + wsPath);

  function log(text) {
    logEl.textContent = text + '\n' + logEl.textContent;
  }

  function send(msg) {
    ws.send(JSON.stringify(msg));
  }

  for (let row = 1; row <= 5; row++) {
    for (let col = 1; col <= 5; col++) {
      const cell = document.createElement('button');
      const id = row + '-' + col;
      cell.textContent = id;
      cell.onclick = function() {
        if (!key) { return; }
        selected = (selected === id) ? '' : id;
        send({ type: 'select_cell', key: key, cellId: selected });
        gridEl.querySelectorAll('button').forEach(function(b) {
          b.classList.toggle('mine', b.textContent === selected);
        });
      };
      gridEl.appendChild(cell);
    }
  }

  document.getElementById('create').onclick = function() {
    const name = prompt('Room name:') || '';
    const pass = prompt('Room password:') || '';
    if (name && pass) {
      send({ type: 'create_room', name: name, key: pass });
    }
  };

  document.getElementById('join').onclick = function() {
    const pass = key || prompt('Room password:') || '';
    const playerName = prompt('Your name:') || '';
    const playerColor = prompt('Your color:') || 'gray';
    if (pass && playerName) {
      key = pass;
      send({ type: 'join_room', key: pass, playerName: playerName, playerColor: playerColor });
    }
  };

  document.getElementById('start').onclick = function() {
    send({ type: 'start_room', key: key });
  };

  document.getElementById('end').onclick = function() {
    send({ type: 'end_room', key: key });
  };

  ws.onopen = function() {
    statusEl.textContent = 'Connected.';
  };

  ws.onmessage = function(event) {
    try {
      const msg = JSON.parse(event.data);

      switch (msg.type) {
      case 'room_created':
        key = msg.key;
        log('Created room "' + msg.name + '". Now join it.');
        break;

      case 'joined':
        isHost = msg.isHost;
        document.getElementById('start').hidden = !isHost;
        document.getElementById('end').hidden = !isHost;
        log('Joined "' + msg.name + '"' + (isHost ? ' as host.' : '.'));
        break;

      case 'member_list_update':
        membersEl.innerHTML = '';
        msg.members.forEach(function(m) {
          const li = document.createElement('li');
          li.textContent = m.name + (m.hasSelected ? ' ✔' : '');
          li.style.color = m.color;
          const ask = document.createElement('button');
          ask.textContent = 'Ask to reveal';
          ask.onclick = function() {
            send({ type: 'request_reveal', key: key, targetPlayerId: m.id });
          };
          li.appendChild(ask);
          membersEl.appendChild(li);
        });
        break;

      case 'room_started':
        log('The game has started.');
        break;

      case 'room_ended':
        log('The game has ended.');
        key = '';
        break;

      case 'player_has_selected':
        log('A player ' + (msg.hasSelected ? 'picked a cell.' : 'cleared their cell.'));
        break;

      case 'reveal_requested':
        const ok = confirm('Another player asks to see your cell. Accept?');
        send({ type: 'respond_reveal', key: key, requesterId: msg.requesterId, accepted: ok });
        break;

      case 'reveal_granted':
        log('Revealed: their cell is ' + msg.cellId);
        break;

      case 'error':
        log('Error: ' + msg.message);
        break;
      }
    } catch (e) {
      console.error('bad message', e);
    }
  };

  ws.onclose = function() {
    statusEl.textContent = 'Disconnected.';
  };

  ws.onerror = function() {
    statusEl.textContent = 'Error with WebSocket.';
  };
})();
</script>
</body>
</html>
`
