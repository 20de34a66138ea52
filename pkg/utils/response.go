package utils

import (
	"github.com/sirupsen/logrus"
)

type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded hands err to the recovery middleware, which renders it.
func PanicIfNeeded(err any) {
	if err != nil {
		logrus.Debugf("[REST] aborting request: %v", err)
		panic(err)
	}
}
