package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cucumber/godog"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background steps
	ctx.Step(`^the certledger server is running$`, tc.serverIsRunning)

	// Issuer steps
	ctx.Step(`^I create a credential for "([^"]*)" in "([^"]*)"$`, tc.createCredential)
	ctx.Step(`^I issue the credential$`, tc.issueCredential)
	ctx.Step(`^I revoke the credential with reason "([^"]*)"$`, tc.revokeCredential)
	ctx.Step(`^I POST to "([^"]*)" without the admin token$`, tc.postWithoutToken)
	ctx.Step(`^I GET "([^"]*)" with admin token "([^"]*)"$`, tc.getWithToken)

	// Verification steps
	ctx.Step(`^I verify the credential by code$`, tc.verifyByCode)
	ctx.Step(`^I verify the credential by asset id$`, tc.verifyByAsset)
	ctx.Step(`^I verify "([^"]*)"$`, tc.verify)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should equal the asset id$`, tc.responseFieldShouldEqualAsset)
	ctx.Step(`^log "([^"]*)"$`, tc.logMessage)
}

func (tc *TestContext) serverIsRunning(ctx context.Context) error {
	if err := tc.GET("/health/live", nil); err != nil {
		return fmt.Errorf("server not reachable at %s: %w", tc.BaseURL, err)
	}
	return tc.responseStatusShouldBe(ctx, http.StatusOK)
}

func (tc *TestContext) createCredential(ctx context.Context, subject, program string) error {
	body := map[string]any{
		"metadata": map[string]any{
			"studentName":   subject,
			"studentNumber": "STU2024001",
			"program":       program,
			"institution":   "State University",
			"issueDate":     "2024-07-15",
		},
	}
	if err := tc.POST("/api/v1/credentials", body, tc.adminHeaders()); err != nil {
		return err
	}
	if err := tc.responseStatusShouldBe(ctx, http.StatusCreated); err != nil {
		return err
	}
	code, err := tc.GetResponseField("credentialCode")
	if err != nil {
		return err
	}
	tc.CredentialCode = fmt.Sprint(code)
	return nil
}

func (tc *TestContext) issueCredential(ctx context.Context) error {
	if err := tc.POST("/api/v1/credentials/"+url.PathEscape(tc.CredentialCode)+"/issue", map[string]any{}, tc.adminHeaders()); err != nil {
		return err
	}
	if err := tc.responseStatusShouldBe(ctx, http.StatusOK); err != nil {
		return err
	}
	asset, err := tc.GetResponseField("credential.assetId")
	if err != nil {
		return err
	}
	tc.AssetID = fmt.Sprint(asset)
	return nil
}

func (tc *TestContext) revokeCredential(ctx context.Context, reason string) error {
	body := map[string]any{"reason": reason}
	if err := tc.POST("/api/v1/credentials/"+url.PathEscape(tc.CredentialCode)+"/revoke", body, tc.adminHeaders()); err != nil {
		return err
	}
	return tc.responseStatusShouldBe(ctx, http.StatusOK)
}

func (tc *TestContext) postWithoutToken(ctx context.Context, path string) error {
	return tc.POST(path, map[string]any{}, nil)
}

func (tc *TestContext) getWithToken(ctx context.Context, path, token string) error {
	return tc.GET(path, map[string]string{"X-Admin-Token": token})
}

func (tc *TestContext) verifyByCode(ctx context.Context) error {
	return tc.verify(ctx, tc.CredentialCode)
}

func (tc *TestContext) verifyByAsset(ctx context.Context) error {
	if tc.AssetID == "" {
		return fmt.Errorf("no asset id recorded; issue the credential first")
	}
	return tc.verify(ctx, tc.AssetID)
}

func (tc *TestContext) verify(ctx context.Context, query string) error {
	return tc.GET("/api/v1/verify?q="+url.QueryEscape(query), nil)
}

func (tc *TestContext) responseStatusShouldBe(ctx context.Context, expectedStatus int) error {
	if got := tc.GetLastResponseStatus(); got != expectedStatus {
		return fmt.Errorf("expected status %d but got %d\nResponse: %s", expectedStatus, got, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseShouldContain(ctx context.Context, field string) error {
	if !tc.ResponseContains(field) {
		return fmt.Errorf("response does not contain field: %s\nResponse: %s", field, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(ctx context.Context, field, expectedValue string) error {
	actualValue, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(actualValue) != expectedValue {
		return fmt.Errorf("field %s: expected %s but got %v", field, expectedValue, actualValue)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqualAsset(ctx context.Context, field string) error {
	return tc.responseFieldShouldEqual(ctx, field, tc.AssetID)
}

func (tc *TestContext) logMessage(ctx context.Context, message string) error {
	fmt.Println(message)
	return nil
}
