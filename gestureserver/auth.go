package main

import (
	"crypto"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Credentials are a basic auth user of the form <expiry>[$<sensor>] and
// the hex HMAC-SHA256 of that user under the API key. A sensor suffix
// limits them to the API of that sensor.

func credentialMAC(apiKey string, user string) []byte {
	h := hmac.New(crypto.SHA256.New, []byte(apiKey))
	h.Write([]byte(user))
	return h.Sum(nil)
}

// credentialFor derives a user and password valid until expiry. An empty
// sensor grants access to every sensor.
func credentialFor(apiKey string, sensor string, expiry time.Time) (string, string) {
	user := strconv.FormatInt(expiry.Unix(), 10)
	if sensor != "" {
		user += "$" + sensor
	}

	return user, hex.EncodeToString(credentialMAC(apiKey, user))
}

// sensorAliases maps every mount point, name or index, to the sensor name.
type sensorAliases map[string]string

func (a sensorAliases) add(index int, name string) {
	a[name] = name
	a[strconv.Itoa(index)] = name
}

// sensorOf returns the sensor addressed by path, or "" for paths outside
// any sensor mount.
func (a sensorAliases) sensorOf(path string) string {
	mount := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	return a[mount]
}

// requireAuth wraps handler with credential checks. Without an API key
// every request passes.
func requireAuth(handler http.HandlerFunc, apiKey string, aliases sensorAliases) http.HandlerFunc {
	if len(apiKey) == 0 {
		return handler
	}

	unauthorized := func(rw http.ResponseWriter) {
		rw.Header().Set("WWW-Authenticate", "Basic realm=\"gestured\"")
		rw.WriteHeader(http.StatusUnauthorized)
	}

	return func(rw http.ResponseWriter, rq *http.Request) {
		user, pwd, ok := rq.BasicAuth()
		if !ok {
			unauthorized(rw)
			return
		}

		mac, err := hex.DecodeString(pwd)
		if err != nil || subtle.ConstantTimeCompare(mac, credentialMAC(apiKey, user)) != 1 {
			unauthorized(rw)
			return
		}

		expiryStr, scope, _ := strings.Cut(user, "$")

		expiry, err := strconv.ParseInt(expiryStr, 10, 64)
		if err != nil || time.Now().Unix() > expiry {
			unauthorized(rw)
			return
		}

		if scope != "" {
			if sensor := aliases.sensorOf(rq.URL.Path); sensor != "" && sensor != scope {
				http.Error(rw, "Credentials not valid for this sensor", http.StatusForbidden)
				return
			}
		}

		handler(rw, rq)
	}
}
