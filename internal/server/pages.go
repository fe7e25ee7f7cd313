package server

import "net/http"

const indexHtml = `<!DOCTYPE html>
<html>
<head>
  <title>ConnectStorm</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; text-align: center; }
    h1 { color: #2c3e50; }
    a { display: inline-block; margin: 10px; padding: 15px 30px; background: #3498db; color: white; text-decoration: none; border-radius: 5px; }
    a:hover { background: #2980b9; }
  </style>
</head>
<body>
  <h1>ConnectStorm</h1>
  <p>Distributed file ingestion with Redis Streams &amp; TimescaleDB</p>
  <div>
    <a href="/upload">Upload Files</a>
    <a href="/api/counts">Counts</a>
  </div>
</body>
</html>
`

const uploadHtml = `<!DOCTYPE html>
<html>
<head>
  <title>ConnectStorm - Upload</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; }
    form { border: 2px dashed #3498db; padding: 30px; border-radius: 5px; }
    input[type=submit] { padding: 10px 25px; background: #3498db; color: white; border: none; border-radius: 5px; }
  </style>
</head>
<body>
  <h1>Upload a file</h1>
  <form action="/api/upload" method="post" enctype="multipart/form-data">
    <p><input type="file" name="file" required></p>
    <p><input type="text" name="uploader_id" placeholder="uploader id (optional)"></p>
    <p><input type="submit" value="Upload"></p>
  </form>
</body>
</html>
`

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHtml))
}

func (s *Server) uploadPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(uploadHtml))
}
