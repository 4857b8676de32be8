package monitor

// dashboardHTML is the debug chart dashboard. It takes two fmt.Sprintf
// arguments: the escaped session label and the escaped query string
// appended to each chart URL.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>ANPR Debug Charts</title>
    <style>
        body {
            font-family: 'SF Mono', 'Fira Code', Menlo, Consolas, monospace;
            background-color: #1a1a2e;
            color: #e0e0e0;
            margin: 0;
            padding: 1rem 2rem;
        }
        h1 {
            color: #4ecca3;
            font-size: 1.2rem;
        }
        .grid {
            display: grid;
            grid-template-columns: 1fr 1fr;
            gap: 1rem;
        }
        iframe {
            width: 100%%;
            height: 640px;
            border: 1px solid #30305a;
            background-color: #16162a;
        }
        .wide { grid-column: span 2; }
        a { color: #4ecca3; }
    </style>
</head>
<body>
    <h1>ANPR Debug Charts <small>(session: %[1]s)</small></h1>
    <p><a href="/">back to status</a></p>
    <div class="grid">
        <iframe src="/debug/charts/readings%[2]s" title="readings"></iframe>
        <iframe src="/debug/charts/confidence%[2]s" title="confidence"></iframe>
        <iframe class="wide" src="/debug/charts/throughput" title="throughput"></iframe>
    </div>
</body>
</html>
`
