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
	"errors"
	"io/fs"
	"net/http"
)

// ErrPathEscapesRoot signals a static asset request path that is not a valid
// path inside the asset root, such as a path with ".." elements.
var ErrPathEscapesRoot = errors.New("request path escapes asset root")

// NormalizedHttpError writes a normalized HTTP error message and HTTP status
// code based on the specified error, but not leaking any interesting internal
// server details from this specified error. It returns the status code
// written.
//
// Missing files are reported as 404, paths escaping the asset root as 403.
// Everything else, including permission problems when reading from the asset
// root, is an internal server error: clients cannot do anything about it.
func NormalizedHttpError(w http.ResponseWriter, err error) int {
	switch {
	case errors.Is(err, ErrPathEscapesRoot):
		http.Error(w, "403 Forbidden", http.StatusForbidden)
		return http.StatusForbidden
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "404 page not found", http.StatusNotFound)
		return http.StatusNotFound
	}
	http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
	return http.StatusInternalServerError
}
