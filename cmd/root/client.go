package root

import (
	"errors"
	"fmt"
	"net/http"

	"service-nanny/internal/rpc"
)

/**
 * Send one request to the daemon and decode the answer
 * @param {string} method - GET or POST
 * @param {string} path - API path, e.g. "/services/llm/start"
 * @param {map[string]interface{}} params - Query parameters, may be nil
 * @param {interface{}} out - Target of the JSON body, nil discards it
 * @returns {error} Transport failure or the daemon's error response
 * @description
 * - A resource conflict names the holder and suggests --force
 */
func Request(method, path string, params map[string]interface{}, out interface{}) error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	var (
		resp *rpc.HTTPResponse
		err  error
	)
	if method == http.MethodPost {
		resp, err = client.Post(path, params, nil)
	} else {
		resp, err = client.Get(path, params)
	}
	if err != nil {
		return err
	}
	if !resp.OK() {
		return describe(resp.Err())
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func describe(err error) error {
	var serr *rpc.ServerError
	if errors.As(err, &serr) && serr.Code == "resource.conflict" && serr.Holder != "" {
		return fmt.Errorf("%w\nthe exclusive resource is held by '%s', retry with --force to stop it first", err, serr.Holder)
	}
	return err
}
