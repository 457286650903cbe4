package service

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

func encodeBody(format Format, v any) ([]byte, error) {
	if format == FormatMessagePack {
		return msgpack.Marshal(v)
	}
	return json.Marshal(v)
}

// ok builds a success Response in the caller's requested format, or an
// Unknown error Response if encoding itself somehow fails.
func ok(req Request, v any) Response {
	body, err := encodeBody(req.Accept, v)
	if err != nil {
		e := Unknown(err.Error())
		return Response{ID: req.ID, BodyFormat: req.Accept, Err: &e}
	}
	return Response{ID: req.ID, BodyFormat: req.Accept, Body: body}
}

func fail(req Request, err ServiceError) Response {
	return Response{ID: req.ID, BodyFormat: req.Accept, Err: &err}
}
