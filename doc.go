/*
Package spahost hosts the built assets of a "Single Page Application" (SPA):
requests for paths below the reserved "static/" prefix are answered with the
corresponding file from the asset root, while any other request path gets the
SPA's index document, so that client-side DOM routing can take over.

The StaticRouter type implements http.Handler and fetches both the static
assets and the index document from any fs.FS. Config resolves an on-disk
asset root into such an fs.FS exactly once at startup, jailed to the asset
root and read-only. Server ties both together with an access-logging HTTP
server that refuses to bind its listening port when the asset root or index
document are missing.

	cfg := spahost.DefaultConfig()
	cfg.Root = "/opt/data/myspa"
	srv, err := spahost.NewServer(cfg, afero.NewOsFs())
	if err != nil {
		logrus.Fatal(err)
	}
	_ = srv.ListenAndServe(ctx)
*/
package spahost
