package integration

import "github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"

func permissionDenied() error {
	return apierr.New(apierr.KindAuthorization, "not authorized to read application events")
}
