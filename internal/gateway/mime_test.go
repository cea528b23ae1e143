package gateway

import "testing"

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name            string
		path            string
		reqType         RequestType
		storedType      string
		wantType        string
		wantDisposition string
	}{
		{
			name: "download forces octet-stream", path: "report.html", reqType: TypeDownload,
			wantType: "application/octet-stream", wantDisposition: `attachment; filename="report.html"`,
		},
		{
			name: "css served as plain text by default", path: "style.css", reqType: TypeDefault,
			wantType: "text/plain", wantDisposition: `inline; filename="style.css"`,
		},
		{
			name: "js served as plain text by default", path: "app.js", reqType: TypeDefault,
			wantType: "text/plain", wantDisposition: `inline; filename="app.js"`,
		},
		{
			name: "preview restores real css type", path: "style.css", reqType: TypePreview,
			wantType: "text/css", wantDisposition: `inline; filename="style.css"`,
		},
		{
			name: "html is displayable without disposition", path: "index.html", reqType: TypeDefault,
			wantType: "text/html", wantDisposition: "",
		},
		{
			name: "png resolves from extension", path: "shot.png", reqType: TypeDefault,
			wantType: "image/png", wantDisposition: `inline; filename="shot.png"`,
		},
		{
			name: "unknown extension falls back to stored type", path: "data.bin", reqType: TypeDefault,
			storedType: "application/zip", wantType: "application/zip", wantDisposition: `inline; filename="data.bin"`,
		},
		{
			name: "no extension no stored type", path: "artifact", reqType: TypeDefault,
			wantType: "application/octet-stream", wantDisposition: `inline; filename="artifact"`,
		},
		{
			name: "nested path uses base name", path: "logs/step 0.log", reqType: TypeDefault,
			wantType: "text/plain", wantDisposition: `inline; filename="step%200.log"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotDisp := negotiate(tt.path, tt.reqType, tt.storedType)
			if gotType != tt.wantType {
				t.Errorf("content type: got %q want %q", gotType, tt.wantType)
			}
			if gotDisp != tt.wantDisposition {
				t.Errorf("disposition: got %q want %q", gotDisp, tt.wantDisposition)
			}
		})
	}
}

func TestMimeFromExtensionCaseInsensitive(t *testing.T) {
	if got := mimeFromExtension("PNG"); got != "image/png" {
		t.Fatalf("uppercase extension: %q", got)
	}
}
