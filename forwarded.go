// Copyright 2022 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package spahost

import (
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ForwardedPrefixHeader, if present, specifies the prefix that need to be
// preprended to the request's URI path in order to learn the original path
// when hitting the path rewriting proxy.
const ForwardedPrefixHeader = "X-Forwarded-Prefix"

// ForwardedUriHeader, if present, specifies the original URI (or sometimes only
// the original URI path) of a request when hitting the first path rewriting
// proxy.
const ForwardedUriHeader = "X-Forwarded-Uri"

// baseRe matches the base element in the index document in order to allow us
// to dynamically rewrite the base the SPA is served from. Go's templating is
// no option here, as the index document must stay usable without any Go
// templating for SPA development.
//
// "*?" instead of "*" keeps the expression from gobbling everything up to the
// last(!) empty element.
var baseRe = regexp.MustCompile(`(<base href=").*?("\s*/?>)`)

// rewriteBaseHref replaces the href of the first base element in the index
// document with the specified base.
func rewriteBaseHref(index string, base string) string {
	// Sanitize the base path so it cannot interfere with the "$1" and "$2"
	// back references. As this ain't VMS (shudder), we don't need "$" in SPA
	// paths anyway.
	base = strings.ReplaceAll(base, "$", "")
	replaced := false
	return baseRe.ReplaceAllStringFunc(index, func(elem string) string {
		if replaced {
			return elem
		}
		replaced = true
		return baseRe.ReplaceAllString(elem, "${1}"+base+"${2}")
	})
}

// originalReqPath returns the (hopefully) original path when hitting the first
// proxy in a chain, based on what has been passed down to us. If no suitable
// forwarding information is present, the cleaned request URL path.
func originalReqPath(r *http.Request) string {
	reqPath := path.Clean("/" + r.URL.Path)
	// Was the request path rewritten? Then the original request path was the
	// forwarded prefix, followed by the remaining part we now see in the
	// request.
	if fwprefix := r.Header.Get(ForwardedPrefixHeader); fwprefix != "" {
		fwprefix = path.Clean("/" + fwprefix)
		return path.Join(fwprefix, reqPath)
	}
	// Some proxies pass only the request path, others the full original URI.
	if fwurl := r.Header.Get(ForwardedUriHeader); fwurl != "" {
		if strings.HasPrefix(fwurl, "/") {
			return path.Clean(fwurl)
		}
		if u, err := url.Parse(fwurl); err == nil {
			return path.Clean("/" + u.Path)
		}
	}
	return reqPath
}

// basename returns the URI request path base based on the given request, by
// consulting proxy headers when available. Rewriting forwarding proxies need to
// preserve the original client-side request URI path for this to work; if
// deriving the base name is impossible, the base is taken to be "/" from the
// clients' perspective.
func basename(r *http.Request) string {
	reqPath := path.Clean("/" + r.URL.Path)
	originalReqPath := originalReqPath(r)
	if strings.HasSuffix(reqPath, "/") && !strings.HasSuffix(originalReqPath, "/") {
		// take care of the situation where the reverse proxy redirects from
		// /foo to /foo/ and then rewrites the path to /.
		originalReqPath += "/"
	}
	var base string
	// If the request path we see is a proper suffix of the original request
	// path, take only the common base part (~prefix).
	if strings.HasSuffix(originalReqPath, reqPath) {
		base = originalReqPath[:len(originalReqPath)-len(reqPath)]
	}
	// The base path must always end with a "/", as otherwise browsers clip
	// off the final element that once was a proper directory name.
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
