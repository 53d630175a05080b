package platform

import "fmt"

// ServiceResourceID builds the Application Auto Scaling resource id of an ECS service.
// Example: service/production-cluster/api
func ServiceResourceID(cluster, service string) string {
	return fmt.Sprintf("service/%s/%s", cluster, service)
}

// S3ObjectARN builds the ARN form of an S3 object location, as FireLens expects it.
// Example: arn:aws:s3:::production-logging-configs/api/logDestinations.conf
func S3ObjectARN(bucket, key string) string {
	return fmt.Sprintf("arn:aws:s3:::%s/%s", bucket, key)
}
