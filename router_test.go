// Copyright 2022 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package spahost

import (
	"embed"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"testing/fstest"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/afero"

	"github.com/thediveo/spahost/test/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

//go:embed test/index.html test/static
var embeddedFiles embed.FS
var embStaticFs, _ = fs.Sub(embeddedFiles, "test")

const (
	indexHTML = "<html></html>"
	appJS     = "console.log(1)"
)

// newRequest returns a new request for the specified method and URL path,
// where the path is taken verbatim and thus can contain ".." elements.
func newRequest(method, path string, header http.Header) *http.Request {
	GinkgoHelper()
	u := Successful(url.Parse("http://foo.bar:12345"))
	u.Path = path
	return &http.Request{
		Method: method,
		URL:    u,
		Header: header,
	}
}

// serve runs a request for the specified path through the handler and returns
// the recorded response.
func serve(h http.Handler, path string) *httptest.WrappedResponseRecorder {
	GinkgoHelper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(http.MethodGet, path, nil))
	return w
}

// serveWithHeader runs a GET request with the specified headers through the
// handler and returns the recorded response.
func serveWithHeader(h http.Handler, path string, header http.Header) *httptest.WrappedResponseRecorder {
	GinkgoHelper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(http.MethodGet, path, header))
	return w
}

// scenarioRoot returns an in-memory asset root with an index document and a
// single static asset.
func scenarioRoot() *AssetRoot {
	GinkgoHelper()
	afs := afero.NewMemMapFs()
	Expect(afero.WriteFile(afs, "/site/index.html", []byte(indexHTML), 0644)).To(Succeed())
	Expect(afero.WriteFile(afs, "/site/static/app.js", []byte(appJS), 0644)).To(Succeed())
	Expect(afs.MkdirAll("/site/static/css", 0755)).To(Succeed())
	Expect(afero.WriteFile(afs, "/etc/passwd", []byte("root:x:0:0"), 0644)).To(Succeed())
	cfg := DefaultConfig()
	cfg.Root = "/site"
	return Successful(cfg.Resolve(afs))
}

var _ = Describe("static router", func() {

	DescribeTable("test has embedded files correctly set up",
		func(name string) {
			f := Successful(embStaticFs.Open(name))
			f.Close()
		},
		Entry("index.html", "index.html"),
		Entry("static/js/some.js", "static/js/some.js"),
		Entry("static/img/icon.png", "static/img/icon.png"),
	)

	When("serving the SPA scenario", func() {

		var h *StaticRouter

		BeforeEach(func() {
			root := scenarioRoot()
			h = NewStaticRouter(root.FS(), root.Index(), WithLogger(quietLogger()))
		})

		DescribeTable("falls back to the index document for anything not static",
			func(path string) {
				w := serve(h, path)
				Expect(w.StatusCode()).To(Equal(http.StatusOK))
				Expect(w.Body.String()).To(Equal(indexHTML))
				Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/html"))
			},
			Entry("root", "/"),
			Entry("empty path", ""),
			Entry("client-side route", "/dashboard/settings"),
			Entry("deeply nested route", "/a/b/c/d/e/f/g/h"),
			Entry("index itself", "/index.html"),
			Entry("prefix without slash", "/static"),
			Entry("look-alike prefix", "/staticfoo/app.js"),
			Entry("non-static file", "/app.js"),
			Entry("traversal outside static", "/../../etc/passwd"),
			Entry("doubled slash", "//static/app.js"),
		)

		It("serves an existing static asset byte-for-byte", func() {
			w := serve(h, "/static/app.js")
			Expect(w.StatusCode()).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal(appJS))
			Expect(w.Header().Get("Content-Type")).To(ContainSubstring("javascript"))
		})

		DescribeTable("rejects missing or unservable static assets without the index",
			func(path string, expectedStatus int) {
				w := serve(h, path)
				Expect(w.StatusCode()).To(Equal(expectedStatus))
				Expect(w.Body.String()).NotTo(ContainSubstring(indexHTML))
				Expect(w.Body.String()).NotTo(ContainSubstring("root:x"))
			},
			Entry("missing asset", "/static/missing.js", http.StatusNotFound),
			Entry("static directory itself", "/static/", http.StatusNotFound),
			Entry("static subdirectory", "/static/css", http.StatusNotFound),
			Entry("static subdirectory with slash", "/static/css/", http.StatusNotFound),
			Entry("traversal to passwd", "/static/../../etc/passwd", http.StatusForbidden),
			Entry("traversal to index", "/static/../index.html", http.StatusForbidden),
			Entry("dot element", "/static/./app.js", http.StatusForbidden),
			Entry("sneaky traversal", "/static/css/../../../etc/passwd", http.StatusForbidden),
		)

		DescribeTable("only serves GET and HEAD",
			func(method string, expectedStatus int) {
				w := httptest.NewRecorder()
				h.ServeHTTP(w, newRequest(method, "/static/app.js", nil))
				Expect(w.StatusCode()).To(Equal(expectedStatus))
				if expectedStatus == http.StatusMethodNotAllowed {
					Expect(w.Header().Get("Allow")).To(Equal("GET, HEAD"))
				}
			},
			Entry("GET", http.MethodGet, http.StatusOK),
			Entry("HEAD", http.MethodHead, http.StatusOK),
			Entry("POST", http.MethodPost, http.StatusMethodNotAllowed),
			Entry("DELETE", http.MethodDelete, http.StatusMethodNotAllowed),
		)

		It("sends no body for HEAD", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, newRequest(http.MethodHead, "/", nil))
			Expect(w.StatusCode()).To(Equal(http.StatusOK))
			Expect(w.Body.Len()).To(BeZero())
		})

	})

	DescribeTable("serves a static asset using varying fs.FS implementations",
		func(fs fs.FS) {
			h := NewStaticRouter(fs, "index.html", WithLogger(quietLogger()))
			w := serve(h, "/static/img/icon.png")
			Expect(w.StatusCode()).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("image/png"))
			Expect(w.Body.Bytes()).To(Equal(Successful(os.ReadFile("test/static/img/icon.png"))))

			w = serve(h, "/some/route")
			Expect(w.StatusCode()).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("CANARY INDEX"))
		},
		Entry("from embedded fs", embStaticFs),
		Entry("from test dir fs", os.DirFS("./test")),
		Entry("from afero fs", afero.NewIOFS(afero.NewBasePathFs(afero.NewOsFs(), "./test"))),
	)

	It("serves the index as-is without base rewriting", func() {
		h := NewStaticRouter(embStaticFs, "index.html")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest(http.MethodGet, "/bar/baz", http.Header{
			ForwardedPrefixHeader: []string{"/foo"},
		}))
		Expect(w.StatusCode()).To(Equal(http.StatusOK))
		Expect(w.Body.Bytes()).To(Equal(Successful(os.ReadFile("test/index.html"))))
	})

	DescribeTable("rewrites the index file",
		func(path, prefix string, expected string) {
			h := NewStaticRouter(embStaticFs, "index.html", WithBaseRewriting())
			w := httptest.NewRecorder()
			h.ServeHTTP(w, newRequest(http.MethodGet, path, http.Header{
				ForwardedPrefixHeader: []string{prefix},
			}))
			Expect(w.StatusCode()).To(Equal(http.StatusOK))
			doc, err := goquery.NewDocumentFromReader(w.Body)
			Expect(err).NotTo(HaveOccurred())
			base := doc.Find("base")
			Expect(base.Length()).To(Equal(1), "<base> element lost")
			href, _ := base.First().Attr("href")
			Expect(href).To(Equal(expected))
		},
		Entry("prefix /foo", "/bar/baz", "/foo", "/foo/"),
		Entry("/", "/", "/", "/"),
		Entry("prefix with dollars", "/", "/$1foo", "/1foo/"),
	)

	It("supports application-specific rewriting/post-processing", func() {
		const canary = "<!-- SOMETHING DIFFERENT -->"
		h := NewStaticRouter(embStaticFs, "index.html",
			WithIndexRewriter(func(r *http.Request, index string) string {
				return index + canary
			}))
		w := serve(h, "/")
		Expect(w.StatusCode()).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(HaveSuffix(canary))
	})

	It("doesn't rewrite static assets", func() {
		h := NewStaticRouter(embStaticFs, "index.html",
			WithIndexRewriter(func(r *http.Request, index string) string {
				return "rewritten"
			}))
		w := serve(h, "/static/js/some.js")
		Expect(w.Body.String()).To(ContainSubstring("CANARY JS"))
	})

	It("returns a 404 when the index is missing", func() {
		h := NewStaticRouter(embStaticFs, "bonkers.html", WithLogger(quietLogger()))
		w := serve(h, "/")
		Expect(w.StatusCode()).To(Equal(http.StatusNotFound))
	})

	It("sanitizes the index path", func() {
		h := NewStaticRouter(embStaticFs, "/../index.html")
		Expect(h.index).To(Equal("index.html"))
		Expect(serve(h, "/").Body.String()).To(ContainSubstring("CANARY INDEX"))
	})

	It("returns a 500 without details on unexpected fs errors", func() {
		h := NewStaticRouter(brokenFS{fstest.MapFS{
			"index.html": &fstest.MapFile{Data: []byte(indexHTML)},
		}}, "index.html", WithLogger(quietLogger()))
		w := serve(h, "/static/secret.js")
		Expect(w.StatusCode()).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).NotTo(ContainSubstring("secret"))
		Expect(w.Body.String()).NotTo(ContainSubstring("permission"))
	})

	It("serves from fs.FS files that cannot seek", func() {
		h := NewStaticRouter(noSeekFS{fstest.MapFS{
			"index.html":    &fstest.MapFile{Data: []byte(indexHTML)},
			"static/app.js": &fstest.MapFile{Data: []byte(appJS)},
		}}, "index.html")
		w := serve(h, "/static/app.js")
		Expect(w.StatusCode()).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal(appJS))
	})

	DescribeTable("checks static asset paths",
		func(name string, expected error) {
			err := checkAssetPath(name)
			if expected == nil {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(err).To(MatchError(expected))
		},
		Entry(nil, "static/app.js", nil),
		Entry(nil, "static/a/b/c.css", nil),
		Entry(nil, "static/", fs.ErrNotExist),
		Entry(nil, "static//app.js", fs.ErrNotExist),
		Entry(nil, "static/..", ErrPathEscapesRoot),
		Entry(nil, "static/../../etc/passwd", ErrPathEscapesRoot),
		Entry(nil, "static/./app.js", ErrPathEscapesRoot),
	)

})

// brokenFS fails opening anything except the index document with a
// permission error.
type brokenFS struct {
	fs.FS
}

func (b brokenFS) Open(name string) (fs.File, error) {
	if name == "index.html" {
		return b.FS.Open(name)
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
}

// noSeekFS hands out files that only support the bare minimum of fs.File.
type noSeekFS struct {
	fs.FS
}

type noSeekFile struct {
	fs.File
}

func (n noSeekFS) Open(name string) (fs.File, error) {
	f, err := n.FS.Open(name)
	if err != nil {
		return nil, err
	}
	return noSeekFile{f}, nil
}
