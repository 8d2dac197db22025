package console

// indexHTML is the console shell. It renders the sync runner panel from
// the websocket state stream and falls back to /api/state polling if the
// socket drops.
const indexHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>PIPS+ Sync Console</title>
    <style>
      body { font-family: system-ui, sans-serif; margin: 2rem; max-width: 72rem; }
      #status { font-weight: 600; }
      #status.running { color: #1d4ed8; }
      #status.success { color: #15803d; }
      #status.error, #status.blocked { color: #b91c1c; }
      #status.cancelled { color: #a16207; }
      #logs { background: #111; color: #ddd; padding: 1rem; height: 24rem;
              overflow-y: scroll; font-family: monospace; white-space: pre-wrap; }
      #banner { background: #fef3c7; padding: 0.5rem 1rem; display: none; }
      .controls button { margin-right: 0.5rem; }
    </style>
  </head>
  <body>
    <h1>PIPS+ Sync Console</h1>
    <div id="banner"></div>
    <p>Status: <span id="status">idle</span> <span id="correlation"></span></p>
    <div class="controls">
      <select id="client"></select>
      <select id="entity"><option>students</option><option>staff</option></select>
      <select id="platform"><option>all</option><option>cloud</option><option>onpremise</option></select>
      <input id="sot" placeholder="source of truth" />
      <label><input type="checkbox" id="enqueue" /> enqueue provisioning</label>
      <button id="run">Run</button>
      <button id="stop">Stop</button>
      <button id="join" style="display:none">Join session</button>
    </div>
    <pre id="logs"></pre>
    <pre id="stats"></pre>
    <script>
      const el = (id) => document.getElementById(id);
      const post = (path, body) => fetch(path, { method: "POST",
        headers: { "Content-Type": "application/json" },
        body: body ? JSON.stringify(body) : null });

      function render(state) {
        el("status").textContent = state.status;
        el("status").className = state.status;
        el("correlation").textContent = state.correlationId || "";
        el("logs").textContent = (state.logs || [])
          .map((l) => l.timestamp + " [" + l.level + "] " + l.message).join("\n");
        el("logs").scrollTop = el("logs").scrollHeight;
        el("stats").textContent = state.stats ? JSON.stringify(state.stats, null, 2) : "";
        el("join").style.display = state.attachedSessionId ? "inline" : "none";
        const banner = el("banner");
        if (state.reconnected) {
          banner.style.display = "block";
          banner.textContent = "Reconnected to an in-flight sync. ";
          const dismiss = document.createElement("a");
          dismiss.href = "#";
          dismiss.textContent = "Dismiss";
          dismiss.onclick = () => { post("/api/dismiss"); return false; };
          banner.appendChild(dismiss);
        } else if (state.errorMessage) {
          banner.style.display = "block";
          banner.textContent = state.errorMessage;
        } else {
          banner.style.display = "none";
        }
      }

      function connect() {
        const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
        ws.onmessage = (msg) => {
          const frame = JSON.parse(msg.data);
          if (frame.type === "state") render(frame.state);
          if (frame.type === "log") fetch("/api/state").then((r) => r.json()).then(render);
        };
        ws.onclose = () => setTimeout(connect, 2000);
      }

      el("run").onclick = () => post("/api/run", {
        clientId: el("client").value,
        entityType: el("entity").value,
        targetPlatform: el("platform").value,
        sourceOfTruth: el("sot").value,
        enqueueProvisioning: el("enqueue").checked,
      });
      el("stop").onclick = () => post("/api/stop");
      el("join").onclick = () => post("/api/join");

      fetch("/api/clients").then((r) => r.json()).then((data) => {
        for (const c of data.clients || []) {
          const opt = document.createElement("option");
          opt.value = c.id || c.Id || "";
          opt.textContent = c.name || c.Name || opt.value;
          el("client").appendChild(opt);
        }
      });
      fetch("/api/state").then((r) => r.json()).then(render);
      connect();
    </script>
  </body>
</html>`
