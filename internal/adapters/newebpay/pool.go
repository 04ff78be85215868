package newebpay

import (
	"net/url"
	"sync"
)

// FormDataPool pools url.Values used for outbound form bodies.
// Every Close, Cancel and Query request builds one.
var FormDataPool = sync.Pool{
	New: func() interface{} {
		return make(url.Values, 8)
	},
}

// GetFormData retrieves an empty url.Values from the pool
func GetFormData() url.Values {
	form := FormDataPool.Get().(url.Values)
	for k := range form {
		delete(form, k)
	}
	return form
}

// PutFormData clears the form, which holds encrypted payloads and signatures, and returns it to the pool
func PutFormData(form url.Values) {
	for k := range form {
		delete(form, k)
	}
	FormDataPool.Put(form)
}
