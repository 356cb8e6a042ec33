package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Prodflow Status</title>
  <style>
    :root {
      --ink: #1b2330;
      --paper: #f6f5f1;
      --card: #ffffff;
      --line: #d8d4c8;
      --accent: #2f7dd1;
      --done: #2f9d5f;
      --muted: #76808f;
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Segoe UI", "Helvetica Neue", sans-serif;
      color: var(--ink);
      background: var(--paper);
      padding: 20px;
    }

    .shell { max-width: 1100px; margin: 0 auto; display: grid; gap: 14px; }

    .bar {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 10px;
      padding: 14px 16px;
      display: flex;
      align-items: center;
      gap: 12px;
    }

    h1 { margin: 0; font-size: 1.3rem; }

    .bar .status { margin-left: auto; color: var(--muted); font-size: 0.85rem; }
    .bar button {
      border: 1px solid var(--line);
      background: var(--card);
      border-radius: 6px;
      padding: 6px 12px;
      cursor: pointer;
    }
    .bar select {
      border: 1px solid var(--line);
      border-radius: 6px;
      padding: 6px 8px;
    }

    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 10px;
      padding: 14px 16px;
    }

    table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
    th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--line); }
    th { color: var(--muted); font-weight: 600; }

    .pill {
      display: inline-block;
      border-radius: 999px;
      padding: 1px 9px;
      font-size: 0.8rem;
      border: 1px solid var(--line);
      color: var(--muted);
    }
    .pill.set { border-color: var(--accent); color: var(--accent); }
    .pill.done { border-color: var(--done); color: var(--done); }
  </style>
</head>
<body>
  <div class="shell">
    <div class="bar">
      <h1>Prodflow Status</h1>
      <select id="category"><option value="">All categories</option></select>
      <button id="refresh">Refresh</button>
      <span class="status" id="status">loading</span>
    </div>
    <div class="card">
      <table>
        <thead>
          <tr>
            <th>Project</th><th>Category</th><th>Type</th><th>Post date</th>
            <th>Video</th><th>Thumbnail</th><th>Reviewed</th>
          </tr>
        </thead>
        <tbody id="rows"></tbody>
      </table>
    </div>
  </div>
  <script>
    (function () {
      const dom = {
        category: document.getElementById("category"),
        refresh: document.getElementById("refresh"),
        status: document.getElementById("status"),
        rows: document.getElementById("rows"),
      };

      function pill(mark, count) {
        if (!mark) return '<span class="pill">unset</span>';
        return '<span class="pill set">' + mark + " (" + count + ")</span>";
      }

      async function loadConfigs() {
        const resp = await fetch("/v1/admin/config");
        const data = await resp.json();
        for (const cfg of data.configs || []) {
          const option = document.createElement("option");
          option.value = cfg.category;
          option.textContent = cfg.category;
          dom.category.appendChild(option);
        }
      }

      async function refresh() {
        dom.status.textContent = "loading";
        const query = dom.category.value ? "?category=" + encodeURIComponent(dom.category.value) : "";
        const resp = await fetch("/v1/admin/ledger" + query);
        if (!resp.ok) {
          dom.status.textContent = "error " + resp.status;
          return;
        }
        const data = await resp.json();
        dom.rows.innerHTML = "";
        for (const entry of data.entries || []) {
          const row = document.createElement("tr");
          row.innerHTML =
            "<td>#" + entry.ordinal + "</td>" +
            "<td>" + entry.category + "</td>" +
            "<td>" + entry.type + "</td>" +
            "<td>" + (entry.scheduledPostDate || "") + "</td>" +
            "<td>" + pill(entry.statuses.video, entry.updateCounts.video) + "</td>" +
            "<td>" + pill(entry.statuses.thumbnail, entry.updateCounts.thumbnail) + "</td>" +
            "<td>" + (entry.completedAt ? '<span class="pill done">done</span>' : "") + "</td>";
          dom.rows.appendChild(row);
        }
        dom.status.textContent = data.count + " projects";
      }

      dom.refresh.addEventListener("click", refresh);
      dom.category.addEventListener("change", refresh);

      loadConfigs().then(refresh);
      setInterval(refresh, 30000);
    })();
  </script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}
