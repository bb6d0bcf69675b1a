// Package services defines the [Provider] interface for catalog metadata and implements it
// for The Movie Database (TMDB) v3 REST API.
//
// # Authentication
//
// [TMDBClient] accepts either a v3 API key, sent as the api_key query parameter, or a v4
// read access token, sent as a bearer token through an [oauth2.Transport] with a static
// token source.
//
// # Transport
//
// [APIClient] performs the raw GET requests. Every request waits on a [rate.Limiter] and
// is retried with retry-go when the network fails or the server answers 429 or 5xx.
// Other 4xx answers are not retried.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrMissingCredentials] : neither an API key nor a read token was configured
//   - [shared.ErrAPIRequest] : HTTP request failed or returned a non-2xx status
//   - [shared.ErrServiceUnavailable] : retries exhausted on 429 or 5xx
//   - [shared.ErrTitleNotFound] : 404 for a single title
//
// # API Mappings
//
// Responses tolerate null and missing fields. title/name and release_date/first_air_date
// are folded into [models.CatalogItem] by its JSON decoder; the kind of the request fills
// in media_type when the endpoint omits it.
package services
